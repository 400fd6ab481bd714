package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/nvr-ai/go-ml-eval/config"
	"github.com/nvr-ai/go-ml-eval/controller"
	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/nvr-ai/go-ml-eval/logger"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/nvr-ai/go-ml-eval/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const appName = "fid-eval"

func main() {
	cfg, err := config.Load(config.NewFlagSet(os.Args[0]), os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}

	if err := logger.Init(logger.Options{AppName: appName, Level: cfg.Log.Level, JSON: cfg.Log.JSON}); err != nil {
		log.Fatal().Err(err).Msg("error initializing logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var prof *profiler.RuntimeProfiler
	if cfg.Profile.Enabled {
		opts := profiler.ProfilingOptions{ReportInterval: cfg.Profile.Interval}
		if cfg.Profile.StatsdAddr != "" {
			client, err := statsd.New(cfg.Profile.StatsdAddr,
				statsd.WithNamespace("fid_eval."),
				statsd.WithTags([]string{"run_id:" + logger.RunID()}))
			if err != nil {
				return errors.Wrapf(err, "error creating statsd client for %s", cfg.Profile.StatsdAddr)
			}
			defer client.Close()
			opts.Statsd = client
		}
		prof = profiler.NewRuntimeProfiler(opts)
		prof.Start()
		defer func() {
			prof.Stop()
			prof.Report(zerolog.InfoLevel)
		}()
	}

	ctrl, model, err := controller.Setup(cfg, prof)
	if err != nil {
		return err
	}
	defer func() {
		if err := model.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing model")
		}
		if err := providers.DestroyEnvironment(); err != nil {
			log.Warn().Err(err).Msg("error destroying onnxruntime environment")
		}
	}()

	if err := ctrl.LoadReference(ctx, controller.ReferenceSource{
		Dataset: cfg.Reference.Dataset,
		Cache:   cfg.Reference.Cache,
	}); err != nil {
		return err
	}

	checkpoints, err := controller.Checkpoints(cfg.ResultsDir, controller.Schedule(cfg), cfg.Schedule.Scan)
	if err != nil {
		return err
	}
	log.Info().Str("results_dir", cfg.ResultsDir).Int("checkpoints", len(checkpoints)).Msg("checkpoints discovered")

	table, err := ctrl.Evaluate(ctx, checkpoints)
	if err != nil {
		return err
	}

	path := util.ScoresPath(cfg.ResultsDir)
	if err := table.Save(path); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("rows", table.Len()).Msg("scores saved")
	return nil
}
