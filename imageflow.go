// Package imageflow provides a top-level convenience entry point for
// building an image generation orchestrator with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/imageflow"
//
//	orch, err := imageflow.New(imageflow.WithConfigFile("imageflow.yaml"))
//	orch, err := imageflow.New() // backends from environment keys
//
//	result := orch.GenerateImage(ctx, &imgen.GenerationRequest{Prompt: "a red bicycle"})
package imageflow

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/imgen"
	"github.com/BaSui01/imageflow/imgen/adapters/gemini"
	"github.com/BaSui01/imageflow/imgen/adapters/openai"
	"github.com/BaSui01/imageflow/imgen/adapters/stability"
	"github.com/BaSui01/imageflow/imgen/cache"
	"github.com/BaSui01/imageflow/internal/metrics"
)

type options struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	adapters   []imgen.Adapter
	metricsReg prometheus.Registerer
}

// Option configures the orchestrator created by [New].
type Option func(*options)

// WithConfigFile loads configuration from the given YAML file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig uses a pre-built configuration, skipping file loading.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAdapter registers a pre-built adapter alongside the configured
// ones.
func WithAdapter(a imgen.Adapter) Option {
	return func(o *options) { o.adapters = append(o.adapters, a) }
}

// WithMetricsRegistry enables Prometheus metrics, registered against
// reg. Pass prometheus.DefaultRegisterer to use the process-wide
// registry.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.metricsReg = reg }
}

// New builds an [imgen.Orchestrator] from configuration: enabled
// backends become registered adapters, and the result cache is set up
// with the configured bounds (plus the Redis tier when enabled).
func New(opts ...Option) (*imgen.Orchestrator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		var err error
		if cfg.Log.Development {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	var collector *metrics.Collector
	if o.metricsReg != nil {
		collector = metrics.NewCollector("imageflow", o.metricsReg, logger)
	}
	retryObserver := func(backend string) []imgen.ExecutorOption {
		if collector == nil {
			return nil
		}
		return []imgen.ExecutorOption{imgen.WithRetryObserver(func(operation string) {
			collector.RecordRetry(backend, operation)
		})}
	}

	registry := imgen.NewRegistry()
	for _, a := range o.adapters {
		registry.Register(a)
	}
	if cfg.OpenAI.Enabled {
		c := cfg.OpenAI.Config
		if c.Retry == nil {
			c.Retry = &cfg.Retry
		}
		registry.Register(openai.New(c, logger, retryObserver(openai.Name)...))
	}
	if cfg.Stability.Enabled {
		c := cfg.Stability.Config
		if c.Retry == nil {
			c.Retry = &cfg.Retry
		}
		registry.Register(stability.New(c, logger, retryObserver(stability.Name)...))
	}
	if cfg.Gemini.Enabled {
		c := cfg.Gemini.Config
		if c.Retry == nil {
			c.Retry = &cfg.Retry
		}
		a, err := gemini.New(c, logger, retryObserver(gemini.Name)...)
		if err != nil {
			return nil, fmt.Errorf("configure gemini backend: %w", err)
		}
		registry.Register(a)
	}
	if registry.Len() == 0 {
		return nil, fmt.Errorf("no image backend is enabled")
	}

	local := cache.New(cache.Config{TTL: cfg.Cache.TTL, MaxSize: cfg.Cache.MaxSize}, logger)
	var resultCache imgen.ResultCache = local
	if cfg.Cache.RedisEnabled {
		resultCache = cache.NewRedis(local, cfg.Cache.Redis, logger)
	}

	orchOpts := []imgen.OrchestratorOption{
		imgen.WithCache(resultCache),
		imgen.WithPriorities(cfg.PriorityTable()),
		imgen.WithLogger(logger),
	}
	if collector != nil {
		orchOpts = append(orchOpts, imgen.WithMetrics(collector))
	}
	return imgen.NewOrchestrator(registry, orchOpts...), nil
}
