package model

import "errors"

// ErrInference is returned when a forward pass cannot be performed, either
// because the input shape does not match the network or the runtime failed.
var ErrInference = errors.New("inference failed")

// Tensor is a dense float32 array in row-major (NCHW) order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Classifier maps a preprocessed image tensor to a class index.
type Classifier interface {
	Predict(t Tensor) (int, error)
}

type Prediction struct {
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
}

// NumElements returns the product of the shape dimensions.
func NumElements(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Argmax returns the index of the largest score. Ties resolve to the lowest index.
func Argmax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}
