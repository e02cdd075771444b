package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/internal/observability"
	"github.com/signalsfoundry/constellation-optimizer/internal/visibilityrpc"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

func main() {
	grpcAddr := flag.String("grpc-addr", ":50061", "TCP address the visibility gRPC server listens on")
	metricsAddr := flag.String("metrics-addr", ":9091", "HTTP address for Prometheus /metrics")
	step := flag.Duration("step", 0, "SGP4 sampling step; 0 selects the adaptive step")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	tracingCfg, err := observability.TracingConfigFromEnv("visibility-server", nil)
	if err != nil {
		log.Error(ctx, "invalid tracing settings", logging.Err(err))
		os.Exit(1)
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewRPCCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	source := visibility.NewSGP4Source(visibility.WithStep(*step), visibility.WithLogger(log))
	server := visibilityrpc.NewGRPCServer(visibilityrpc.NewServer(source, log, collector))

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", *grpcAddr), logging.Err(err))
		os.Exit(1)
	}

	log.Info(ctx, "starting visibility gRPC server",
		logging.String("addr", *grpcAddr),
		logging.Duration("step", *step),
	)
	go func() {
		if err := server.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down visibility server")
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(collector.Gatherer()))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
