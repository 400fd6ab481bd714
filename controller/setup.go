package controller

import (
	"github.com/nvr-ai/go-ml-eval/config"
	"github.com/nvr-ai/go-ml-eval/features"
	"github.com/nvr-ai/go-ml-eval/inference"
	"github.com/nvr-ai/go-ml-eval/inference/providers"
	"github.com/nvr-ai/go-ml-eval/profiler"
	"github.com/nvr-ai/go-ml-eval/util"
)

// Setup loads the model described by cfg and wires a controller around it.
//
// Arguments:
//   - cfg: The run configuration.
//   - prof: An optional profiler; the model session is registered as a metrics collector.
//
// Returns:
//   - *Controller: The controller.
//   - inference.Model: The loaded model, to be closed by the caller.
//   - error: A provider or model loading error.
func Setup(cfg *config.Config, prof *profiler.RuntimeProfiler) (*Controller, inference.Model, error) {
	builder := inference.NewEngineBuilder().
		WithProvider(providers.ForDevice(cfg.GPU)).
		WithModel(inference.ModelConfig{
			Path:              cfg.Model.Path,
			Input:             cfg.Model.Input,
			EmbeddingOutput:   cfg.Model.EmbeddingOutput,
			ProbabilityOutput: cfg.Model.ProbabilityOutput,
			LogitsOutput:      cfg.Model.LogitsOutput,
			SharedLibrary:     cfg.Model.SharedLibrary,
		}).
		WithHead(cfg.Model.Head)

	model, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}

	extractor := features.NewExtractor(model)
	extractor.ChunkSize = cfg.Scoring.ChunkSize
	extractor.EmbeddingDim = cfg.Scoring.EmbeddingDim
	extractor.Profiler = prof

	c := New(extractor)
	c.ResizeTo = cfg.Model.ResizeTo
	c.Scorer.Splits = cfg.Scoring.Splits
	c.Scorer.Eps = cfg.Scoring.Eps
	c.Scorer.Profiler = prof

	if prof != nil {
		prof.AddMetricsCollector(model.Session())
	}
	return c, model, nil
}

// Schedule returns the checkpoint schedule of cfg.
func Schedule(cfg *config.Config) util.Schedule {
	return util.Schedule{Start: cfg.Schedule.Start, End: cfg.Schedule.End, Step: cfg.Schedule.Step}
}
