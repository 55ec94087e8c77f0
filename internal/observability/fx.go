package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/perishables/internal/observability/logger"
	"github.com/smallbiznis/perishables/internal/observability/metrics"
	"github.com/smallbiznis/perishables/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.LoggerConfig,
		Config.TracingConfig,
		logger.New,
		tracing.NewProvider,
		func() prometheus.Registerer { return prometheus.DefaultRegisterer },
		metrics.New,
	),
	// Forces the tracer provider to be built so the global propagator is installed.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
