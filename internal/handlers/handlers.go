package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Brownie44l1/imgclass-api/internal/labels"
	"github.com/Brownie44l1/imgclass-api/internal/metrics"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileField is the multipart field carrying the image.
const FileField = "file"

// ErrMissingFile is returned when the request has no file field.
var ErrMissingFile = errors.New("no file field in request")

// Handler serves predictions. Every dependency is built once at startup and
// only read afterwards, so a Handler is safe for concurrent requests.
type Handler struct {
	classifier   model.Classifier
	labels       *labels.Table
	preprocessor *preprocess.Preprocessor
	metrics      *metrics.Metrics
	log          *zap.Logger
	maxUpload    int64
}

type Deps struct {
	Classifier     model.Classifier
	Labels         *labels.Table
	Preprocessor   *preprocess.Preprocessor
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	MaxUploadBytes int64
}

func NewHandler(d Deps) *Handler {
	if d.Preprocessor == nil {
		d.Preprocessor = preprocess.New()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		classifier:   d.Classifier,
		labels:       d.Labels,
		preprocessor: d.Preprocessor,
		metrics:      d.Metrics,
		log:          d.Log,
		maxUpload:    d.MaxUploadBytes,
	}
}

func (h *Handler) Hello(c *gin.Context) {
	c.String(http.StatusOK, "Hello World!")
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Predict handles POST /predict. Failures are attached to the context and
// left to the Faults middleware; no structured error body is produced here.
func (h *Handler) Predict(c *gin.Context) {
	data, err := h.readUpload(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	pred, err := h.Classify(data)
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.Predictions.WithLabelValues(pred.ClassID).Inc()
	}
	h.log.Debug("prediction",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("class_id", pred.ClassID),
		zap.String("class_name", pred.ClassName))
	c.JSON(http.StatusOK, pred)
}

// Classify runs the decode, inference and lookup stages in order, stopping
// at the first failure.
func (h *Handler) Classify(data []byte) (model.Prediction, error) {
	tensor, err := h.preprocessor.Transform(data)
	if err != nil {
		return model.Prediction{}, err
	}

	idx, err := h.classifier.Predict(tensor)
	if err != nil {
		return model.Prediction{}, err
	}

	entry, err := h.labels.Resolve(idx)
	if err != nil {
		return model.Prediction{}, err
	}

	return model.Prediction{ClassID: entry.ID, ClassName: entry.Name}, nil
}

func (h *Handler) readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	header, err := c.FormFile(FileField)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, ErrMissingFile
	}
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
