package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/taskgate/internal/ids"
	"github.com/drblury/taskgate/internal/logging"
	"github.com/drblury/taskgate/internal/protocol"
)

// registerMiddlewares attaches the standard middleware chain to the router.
// Order matters: correlation and logging wrap everything, the poison queue
// catches unprocessable payloads, and the recoverer turns panics into errors
// before they can tear the router down.
func (g *Gateway) registerMiddlewares() error {
	g.router.AddMiddleware(g.correlationIDMiddleware())
	g.router.AddMiddleware(g.logMessagesMiddleware())
	g.router.AddMiddleware(g.tracerMiddleware())

	if mw := g.metricsMiddleware(); mw != nil {
		g.router.AddMiddleware(mw)
	}

	poison, err := g.poisonMiddleware()
	if err != nil {
		return err
	}
	g.router.AddMiddleware(poison)
	g.router.AddMiddleware(middleware.Recoverer)

	return nil
}

// correlationIDMiddleware ensures each message carries a correlation id in
// its metadata. The envelope's own id is preferred so transports that do not
// propagate metadata still correlate correctly; a fresh ULID is the fallback
// for payloads with no usable id.
func (g *Gateway) correlationIDMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if _, ok := msg.Metadata[protocol.MetadataKeyCorrelationID]; !ok {
				correlationID := gjson.GetBytes(msg.Payload, "id").String()
				if correlationID == "" {
					correlationID = ids.New()
				}
				msg.Metadata[protocol.MetadataKeyCorrelationID] = correlationID
			}
			return h(msg)
		}
	}
}

// logMessagesMiddleware logs all processed messages with their metadata.
func (g *Gateway) logMessagesMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			g.Logger.Debug("Processing message", logging.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

// tracerMiddleware wraps message handling with an OpenTelemetry span.
func (g *Gateway) tracerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			tracer := otel.Tracer("taskgate-gateway")
			ctx, span := tracer.Start(
				msg.Context(),
				"HandleRequest",
			)
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("message.metadata", fmt.Sprintf("%v", msg.Metadata)),
			)
			return h(msg)
		}
	}
}

// metricsMiddleware adds Prometheus metrics to the router when enabled.
func (g *Gateway) metricsMiddleware() message.HandlerMiddleware {
	if !g.Conf.MetricsEnabled {
		return nil
	}

	metricsBuilder := metrics.NewPrometheusMetricsBuilder(
		prometheus.DefaultRegisterer,
		"taskgate",
		g.Conf.PubSubSystem,
	)
	metricsBuilder.AddPrometheusRouterMetrics(g.router)

	if g.Conf.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", g.Conf.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return metricsBuilder.NewRouterMiddleware().Middleware
}

func (g *Gateway) startMetricsServer() {
	if g.metricsServer == nil {
		return
	}
	go func() {
		if err := g.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.Logger.Error("Metrics server stopped", err, nil)
		}
	}()
}

// poisonMiddleware forwards unanswerable messages to the dead letter queue
// and acks them: payloads that could not be parsed into a request envelope,
// and recovered panics. Everything else propagates as a handler error.
func (g *Gateway) poisonMiddleware() (message.HandlerMiddleware, error) {
	return middleware.PoisonQueueWithFilter(
		g.publisher,
		g.Conf.DeadLetterQueue,
		func(err error) bool {
			var unprocessable *protocol.UnprocessableRequestError
			if errors.As(err, &unprocessable) {
				return true
			}
			var recovered middleware.RecoveredPanicError
			return errors.As(err, &recovered)
		},
	)
}
