package main

import (
	"context"
	"io"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/logger"
	"github.com/ajitpratap0/crystal/pkg/observability"
)

// setup initializes the global logger from cfg and the log flags, and
// installs tracing when trace or --trace is set. The returned function
// flushes both.
func setup(v *viper.Viper, cfg logger.Config, trace bool, sampleRate float64, traceOut io.Writer) (*zap.Logger, func(), error) {
	if level := v.GetString("log-level"); level != "" {
		cfg.Level = level
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Encoding = format
	}
	if err := logger.Init(cfg); err != nil {
		return nil, nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeConfig, "invalid logging configuration")
	}
	log := logger.Get()
	cleanup := func() { _ = logger.Sync() }

	if !trace && !v.GetBool("trace") {
		return log, cleanup, nil
	}

	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = version
	tc.SamplingRate = sampleRate
	tc.Output = traceOut
	shutdown, err := observability.InitTracing(tc)
	if err != nil {
		return nil, nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeConfig, "failed to initialize tracing")
	}
	log.Debug("tracing enabled", zap.Float64("sample_rate", sampleRate))

	return log, func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("failed to shut down tracing", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}
