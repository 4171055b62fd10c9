package metrics

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "time"

  "github.com/go-chi/chi/v5"
  "github.com/go-chi/chi/v5/middleware"
  "github.com/prometheus/client_golang/prometheus/promhttp"
  "go.uber.org/zap"
)

// Router exposes /metrics and a liveness probe.
func Router() http.Handler {
  r := chi.NewRouter()
  r.Use(middleware.Recoverer)
  r.Handle("/metrics", promhttp.Handler())
  r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
    w.WriteHeader(http.StatusOK)
    w.Write([]byte("ok"))
  })
  return r
}

// Serve runs the metrics server on port until ctx is done. Port 0 disables it.
func Serve(ctx context.Context, port int, log *zap.Logger) {
  if port == 0 {
    return
  }
  srv := &http.Server{
    Addr:              fmt.Sprintf(":%d", port),
    Handler:           Router(),
    ReadHeaderTimeout: 5 * time.Second,
  }

  go func() {
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    srv.Shutdown(shutdownCtx)
  }()

  log.Info("metrics server listening", zap.String("addr", srv.Addr))
  if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
    log.Warn("metrics server stopped", zap.Error(err))
  }
}
