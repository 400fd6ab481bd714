// Command refstats computes the reference statistics of a dataset once and saves them as
// mu.npy and sigma.npy, for later runs to load with --reference_cache.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-ml-eval/config"
	"github.com/nvr-ai/go-ml-eval/controller"
	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/nvr-ai/go-ml-eval/logger"
	"github.com/nvr-ai/go-ml-eval/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load(config.NewFlagSet(os.Args[0]), os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}

	if err := logger.Init(logger.Options{AppName: "refstats", Level: cfg.Log.Level, JSON: cfg.Log.JSON}); err != nil {
		log.Fatal().Err(err).Msg("error initializing logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("reference statistics failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Reference.Cache == "" {
		return errors.New("--reference_cache is required")
	}
	if cfg.Reference.Dataset == "" {
		return errors.New("--reference is required")
	}

	ctrl, model, err := controller.Setup(cfg, nil)
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

	g, err := ctrl.ComputeReference(ctx, cfg.Reference.Dataset)
	if err != nil {
		return err
	}
	if err := metrics.SaveGaussian(cfg.Reference.Cache, g); err != nil {
		return err
	}

	log.Info().
		Str("dataset", cfg.Reference.Dataset).
		Str("cache", cfg.Reference.Cache).
		Int("dim", g.Dim()).
		Msg("reference statistics saved")
	return nil
}
