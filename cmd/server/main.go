package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/imgclass-api/internal/config"
	"github.com/Brownie44l1/imgclass-api/internal/handlers"
	"github.com/Brownie44l1/imgclass-api/internal/labels"
	"github.com/Brownie44l1/imgclass-api/internal/metrics"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	bootLog := bootLogger()

	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.Fatal("failed to load config", zap.Error(err))
	}

	log, err := cfg.NewLogger()
	if err != nil {
		bootLog.Fatal("failed to build logger", zap.Error(err))
	}
	defer log.Sync()

	if len(os.Args) > 1 && os.Args[1] == "predict" {
		if len(os.Args) < 3 {
			log.Fatal("usage: server predict <image>")
		}
		if err := predictOnce(cfg, log, os.Args[2]); err != nil {
			log.Fatal("prediction failed", zap.Error(err))
		}
		return
	}

	if err := serve(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

// bootLogger is used until the configured logger exists. zap.NewExample
// cannot fail, so a broken production config still leaves a usable logger.
func bootLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewExample()
		l.Warn("production logger unavailable, using fallback", zap.Error(err))
	}
	return l
}

// setup loads the label table and model. Either failing is fatal: the
// server must not accept requests without both.
func setup(cfg *config.Config, log *zap.Logger) (*labels.Table, *model.Server, error) {
	table, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load labels from %s: %w", cfg.LabelsPath, err)
	}
	log.Info("labels loaded", zap.String("path", cfg.LabelsPath), zap.Int("entries", table.Len()))

	log.Info("loading model", zap.String("path", cfg.ModelPath))
	srv, err := model.NewServer(model.Options{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.ORTLibraryPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	log.Info("model loaded",
		zap.String("input", srv.InputName),
		zap.Int64s("input_shape", srv.InputShape),
		zap.String("output", srv.OutputName),
		zap.Int64s("output_shape", srv.OutputShape))

	if srv.NumClasses() != table.Len() {
		log.Warn("label table does not cover every class; unmatched indices will fault",
			zap.Int("classes", srv.NumClasses()), zap.Int("labels", table.Len()))
	}
	return table, srv, nil
}

func serve(cfg *config.Config, log *zap.Logger) error {
	table, srv, err := setup(cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gin.SetMode(cfg.GinMode)
	h := handlers.NewHandler(handlers.Deps{
		Classifier:     srv,
		Labels:         table,
		Preprocessor:   preprocess.New(),
		Metrics:        metrics.New(reg),
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(h),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", httpSrv.Addr))
		log.Info("endpoints",
			zap.Strings("routes", []string{"GET /", "GET /health", "GET /metrics", "POST /predict"}))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// predictOnce classifies one local file and prints the JSON result.
func predictOnce(cfg *config.Config, log *zap.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	table, srv, err := setup(cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	h := handlers.NewHandler(handlers.Deps{
		Classifier:   srv,
		Labels:       table,
		Preprocessor: preprocess.New(),
		Log:          log,
	})
	pred, err := h.Classify(data)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(pred)
}
