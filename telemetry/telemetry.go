package telemetry

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "resttap"

var (
	once     sync.Once
	provider *sdktrace.TracerProvider
)

// Init installs the global tracer provider. Spans are exported to stderr as
// JSON when tracing is enabled, stdout being reserved for the message stream.
func Init() {
	once.Do(func() {
		options := []sdktrace.TracerProviderOption{}
		if viper.GetBool(constants.TraceEnabled) {
			exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
			if err != nil {
				logger.Warnf("failed to create trace exporter, tracing disabled: %s", err)
			} else {
				options = append(options, sdktrace.WithBatcher(exporter))
			}
		}

		provider = sdktrace.NewTracerProvider(options...)
		otel.SetTracerProvider(provider)
	})
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) {
	if provider == nil {
		return
	}
	if err := provider.Shutdown(ctx); err != nil {
		logger.Debugf("failed to shutdown tracer provider: %s", err)
	}
}

// Event tracks one protocol command as a span carrying its outcome.
type Event struct {
	span      trace.Span
	startTime time.Time
}

func StartEvent(ctx context.Context, name, sourceType string) (context.Context, *Event) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("source_type", sourceType),
		attribute.String("os", runtime.GOOS),
		attribute.String("arch", runtime.GOARCH),
	))
	return ctx, &Event{span: span, startTime: time.Now()}
}

func (e *Event) SetInt(key string, value int) {
	e.span.SetAttributes(attribute.Int(key, value))
}

// End records the outcome and duration of the command.
func (e *Event) End(err error) {
	e.span.SetAttributes(
		attribute.Float64("duration_sec", time.Since(e.startTime).Seconds()),
		attribute.Bool("success", err == nil),
	)
	if err != nil {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	}
	e.span.End()
}
