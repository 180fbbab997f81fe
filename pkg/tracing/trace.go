package tracing

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pg-sharding/colexec/pkg/config"
	"github.com/pg-sharding/colexec/pkg/execlog"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

const component = "colexec"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type jaegerLogger struct{}

func (jaegerLogger) Error(msg string) {
	execlog.Zero.Error().Str("component", "jaeger").Msg(msg)
}

func (jaegerLogger) Infof(msg string, args ...interface{}) {
	execlog.Zero.Debug().Str("component", "jaeger").Msgf(msg, args...)
}

// InitJaegerTracer installs a jaeger tracer as the global opentracing
// tracer. A disabled config leaves the noop tracer in place.
func InitJaegerTracer(cfg config.JaegerCfg) (io.Closer, error) {
	if !cfg.Enabled {
		return nopCloser{}, nil
	}
	jcfg := jaegercfg.Configuration{
		ServiceName: cfg.Service,
		Sampler: &jaegercfg.SamplerConfig{
			Type:              "probabilistic",
			Param:             cfg.SampleRate,
			SamplingServerURL: cfg.JaegerUrl,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: cfg.AgentAddr,
		},
		Gen128Bit: true,
		Tags: []opentracing.Tag{
			{Key: "span.kind", Value: "server"},
		},
	}
	closer, err := jcfg.InitGlobalTracer(
		cfg.Service,
		jaegercfg.Logger(jaegerLogger{}),
		jaegercfg.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, err
	}
	execlog.Zero.Info().Str("service", cfg.Service).Msg("jaeger tracer initialized")
	return closer, nil
}

// StartSpan opens a span for one operator call as a child of the span
// carried by ctx.
func StartSpan(ctx context.Context, operation string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	ext.Component.Set(span, component)
	return span, ctx
}

// Fail marks span as failed.
func Fail(span opentracing.Span, err error) {
	if err == nil {
		return
	}
	ext.Error.Set(span, true)
	span.LogKV("event", "error", "message", err.Error())
}
