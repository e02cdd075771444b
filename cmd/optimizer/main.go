package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/constellation-optimizer/decision"
	"github.com/signalsfoundry/constellation-optimizer/internal/config"
	"github.com/signalsfoundry/constellation-optimizer/internal/logging"
	"github.com/signalsfoundry/constellation-optimizer/internal/observability"
	"github.com/signalsfoundry/constellation-optimizer/internal/visibilityrpc"
	"github.com/signalsfoundry/constellation-optimizer/optimizer"
	"github.com/signalsfoundry/constellation-optimizer/visibility"
)

func main() {
	configPath := flag.String("config", "configs/single-plane.yaml", "Path to the run configuration (YAML or JSON)")
	outPath := flag.String("out", "-", "Where to write the JSON result; - for stdout")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics; empty disables it")
	generations := flag.Int("generations", 0, "Override the generation budget")
	population := flag.Int("population", 0, "Override the population size")
	workers := flag.Int("workers", -1, "Override the number of concurrent evaluations (0 = GOMAXPROCS)")
	seed := flag.Int64("seed", 0, "Override the random seed")
	wallClock := flag.Duration("wall-clock", 0, "Override the wall-clock budget")
	visibilityAddr := flag.String("visibility-addr", "", "Use a remote visibility service at this address")
	flag.Parse()

	log := logging.NewFromEnv()
	os.Exit(run(log, *configPath, *outPath, *metricsAddr, func(cfg *config.Config) {
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "generations":
				cfg.Optimizer.Generations = *generations
			case "population":
				cfg.Optimizer.Population = *population
			case "workers":
				cfg.Optimizer.Workers = *workers
			case "seed":
				cfg.Optimizer.Seed = *seed
			case "wall-clock":
				cfg.Optimizer.WallClock = *wallClock
			case "visibility-addr":
				cfg.Visibility.Addr = *visibilityAddr
			}
		})
	}))
}

func run(log logging.Logger, configPath, outPath, metricsAddr string, override func(*config.Config)) int {
	ctx := context.Background()

	runID := uuid.NewString()
	log = log.With(logging.String("run_id", runID))
	tracingCfg, err := observability.TracingConfigFromEnv("optimizer", nil)
	if err != nil {
		log.Error(ctx, "invalid tracing settings", logging.Err(err))
		return 1
	}
	tracingCfg = tracingCfg.WithAttribute(observability.AttrRunID, runID)
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", configPath), logging.Err(err))
		return 1
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		log.Error(ctx, "invalid environment override", logging.Err(err))
		return 1
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid optimiser settings", logging.Err(err))
		return 1
	}
	for _, d := range cfg.Defaults {
		log.Warn(ctx, "config default applied", logging.String("setting", d))
	}

	optMetrics, err := observability.NewOptimizerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return 1
	}
	rpcMetrics, err := observability.NewRPCCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		return 1
	}
	metricsSrv := serveMetrics(metricsAddr, log)

	schema, err := cfg.Schema(log)
	if err != nil {
		log.Error(ctx, "invalid decision schema", logging.Err(err))
		return 1
	}
	advice := decision.AdviseBounds(ctx, schema, cfg.Sensor.HalfFOV, log)

	var source visibility.Source
	if cfg.Visibility.Addr != "" {
		client, err := visibilityrpc.Dial(cfg.Visibility.Addr,
			visibilityrpc.WithRateLimit(cfg.Visibility.RatePerSecond, cfg.Visibility.Burst),
			visibilityrpc.WithTimeout(cfg.Visibility.Timeout),
			visibilityrpc.WithClientLogger(log),
			visibilityrpc.WithClientMetrics(rpcMetrics),
		)
		if err != nil {
			log.Error(ctx, "failed to connect to visibility service", logging.Err(err))
			return 1
		}
		defer client.Close()
		source = client
		log.Info(ctx, "using remote visibility service", logging.String("addr", cfg.Visibility.Addr))
	} else {
		source = visibility.NewSGP4Source(visibility.WithStep(cfg.Sensor.Step), visibility.WithLogger(log))
	}

	minElevation, costOpts := cfg.CostOptions()
	cost, err := decision.NewCostFunction(schema, cfg.ConstellationBuilder(log), source, cfg.Window, minElevation,
		append(costOpts, decision.WithCostLogger(log))...)
	if err != nil {
		log.Error(ctx, "failed to build cost function", logging.Err(err))
		return 1
	}

	opt, err := optimizer.New(schema, cost, cfg.Optimizer,
		optimizer.WithRunID(runID),
		optimizer.WithStrategy(cfg.Genetic),
		optimizer.WithLogger(log),
		optimizer.WithMetrics(optMetrics),
	)
	if err != nil {
		log.Error(ctx, "invalid optimiser settings", logging.Err(err))
		return 1
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	res, runErr := opt.Run(runCtx)
	stop()
	if runErr != nil {
		log.Error(ctx, "optimisation failed", logging.Err(runErr))
	}

	var ev *decision.Evaluation
	if res.Best != nil {
		evalCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		e, err := cost.Evaluate(evalCtx, res.Best)
		cancel()
		if err != nil {
			log.Warn(ctx, "could not rebuild best constellation", logging.Err(err))
		} else {
			ev = &e
		}
	}

	if err := writeReport(outPath, newReport(schema, res, runErr, ev, advice)); err != nil {
		log.Error(ctx, "failed to write result", logging.String("path", outPath), logging.Err(err))
		return 1
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func writeReport(path string, r report) error {
	if path == "" || path == "-" {
		return r.write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func serveMetrics(addr string, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(nil))

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
