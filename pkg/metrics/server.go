package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/livo-backend/pkg/logger"
)

// Serve exposes gatherer on addr/metrics for workers that have no API
// router, and stops when ctx is canceled. An empty addr is a no-op. The
// listener is bound before Serve returns so a port clash fails startup.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logg *logger.Logger) (net.Addr, error) {
	if addr == "" {
		return nil, nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && logg != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	if logg != nil {
		logg.Info(logg.WithField(ctx, "metrics_addr", ln.Addr().String()), "metrics endpoint listening")
	}
	return ln.Addr(), nil
}
