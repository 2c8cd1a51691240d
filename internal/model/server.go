package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options locate the model artifact and the ONNX Runtime shared library.
type Options struct {
	ModelPath string
	// LibraryPath overrides the default onnxruntime shared library lookup.
	LibraryPath string
}

// Server runs a pretrained ONNX classifier. The session is created once and
// never modified; mu guards the input/output buffers bound to it.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	InputName   string
	OutputName  string
	InputShape  []int64
	OutputShape []int64
}

func NewServer(opts Options) (*Server, error) {
	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("expected a single input and output, got %d and %d", len(inputs), len(outputs))
	}

	inputShape, err := concreteShape(inputs[0].Dimensions)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("input %s: %w", inputs[0].Name, err)
	}
	outputShape, err := concreteShape(outputs[0].Dimensions)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("output %s: %w", outputs[0].Name, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		InputName:    inputs[0].Name,
		OutputName:   outputs[0].Name,
		InputShape:   inputShape,
		OutputShape:  outputShape,
	}, nil
}

// NumClasses is the width of the class-score dimension.
func (s *Server) NumClasses() int {
	return int(s.OutputShape[len(s.OutputShape)-1])
}

// Predict runs one forward pass and returns the argmax of the class scores.
func (s *Server) Predict(t Tensor) (int, error) {
	if err := checkShape(s.InputShape, t); err != nil {
		return -1, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), t.Data)

	if err := s.session.Run(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrInference, err)
	}

	// Only the first batch row is read; the input batch is always 1.
	scores := s.outputTensor.GetData()[:s.NumClasses()]
	return Argmax(scores), nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// concreteShape pins a symbolic batch dimension (reported as -1) to 1. Any
// other symbolic dimension is rejected: the tensors are allocated once.
func concreteShape(dims ort.Shape) ([]int64, error) {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			if i != 0 {
				return nil, fmt.Errorf("dimension %d of %v is symbolic; only the batch dimension may be", i, dims)
			}
			d = 1
		}
		shape[i] = d
	}
	return shape, nil
}

func checkShape(want []int64, t Tensor) error {
	if len(want) != len(t.Shape) {
		return fmt.Errorf("%w: input shape %v, model expects %v", ErrInference, t.Shape, want)
	}
	for i := range want {
		if want[i] != t.Shape[i] {
			return fmt.Errorf("%w: input shape %v, model expects %v", ErrInference, t.Shape, want)
		}
	}
	if len(t.Data) != NumElements(want) {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInference, NumElements(want), len(t.Data))
	}
	return nil
}
