package model

import (
	"errors"
	"testing"

	ort "github.com/yalue/onnxruntime_go"
)

func TestArgmax(t *testing.T) {
	cases := []struct {
		name   string
		scores []float32
		want   int
	}{
		{"single", []float32{0.3}, 0},
		{"max in middle", []float32{0.1, 0.9, 0.2}, 1},
		{"negative logits", []float32{-3, -1, -2}, 1},
		{"tie takes first", []float32{0.5, 0.7, 0.7, 0.1}, 1},
		{"empty", nil, -1},
	}
	for _, tc := range cases {
		if got := Argmax(tc.scores); got != tc.want {
			t.Errorf("%s: Argmax(%v) = %d, want %d", tc.name, tc.scores, got, tc.want)
		}
	}
}

func TestCheckShape(t *testing.T) {
	want := []int64{1, 3, 2, 2}
	ok := Tensor{Shape: []int64{1, 3, 2, 2}, Data: make([]float32, 12)}
	if err := checkShape(want, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Tensor{
		{Shape: []int64{3, 2, 2}, Data: make([]float32, 12)},
		{Shape: []int64{1, 3, 2, 3}, Data: make([]float32, 18)},
		{Shape: []int64{1, 3, 2, 2}, Data: make([]float32, 11)},
	}
	for _, tensor := range bad {
		if err := checkShape(want, tensor); !errors.Is(err, ErrInference) {
			t.Errorf("shape %v with %d values: expected ErrInference, got %v", tensor.Shape, len(tensor.Data), err)
		}
	}
}

func TestConcreteShape(t *testing.T) {
	got, err := concreteShape(ort.NewShape(-1, 3, 224, 224))
	if err != nil {
		t.Fatalf("concreteShape: %v", err)
	}
	want := []int64{1, 3, 224, 224}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("concreteShape = %v, want %v", got, want)
		}
	}

	for _, dims := range []ort.Shape{
		ort.NewShape(-1, 3, -1, -1),
		ort.NewShape(1, 3, 224, -1),
		ort.NewShape(-1, -1),
	} {
		if _, err := concreteShape(dims); err == nil {
			t.Errorf("concreteShape(%v): expected error for symbolic non-batch dimension", dims)
		}
	}
}

func TestServerPredictRejectsWrongShapeBeforeRun(t *testing.T) {
	s := &Server{InputShape: []int64{1, 3, 224, 224}, OutputShape: []int64{1, 1000}}
	_, err := s.Predict(Tensor{Shape: []int64{1, 3, 32, 32}, Data: make([]float32, 3*32*32)})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}
