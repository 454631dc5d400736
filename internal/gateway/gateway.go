// Package gateway wires a Watermill router that consumes request envelopes
// from the request queue, dispatches them through the action registry, and
// publishes correlated responses back to the caller's reply destination.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	"github.com/drblury/taskgate/internal/auth"
	"github.com/drblury/taskgate/internal/config"
	"github.com/drblury/taskgate/internal/handlers"
	"github.com/drblury/taskgate/internal/idempotency"
	"github.com/drblury/taskgate/internal/ids"
	"github.com/drblury/taskgate/internal/logging"
	"github.com/drblury/taskgate/internal/protocol"
	"github.com/drblury/taskgate/internal/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Dependencies holds the collaborators of the gateway. Registry, Verifier and
// Cache are required. Transport overrides the broker connection built from
// config; the gateway does not close an injected transport.
type Dependencies struct {
	Registry *handlers.Registry
	Verifier auth.Verifier
	Cache    *idempotency.Cache

	Transport *transport.Transport
}

// Gateway consumes requests from the configured request queue and publishes
// responses to each request's reply destination.
type Gateway struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	registry *handlers.Registry
	verifier auth.Verifier
	cache    *idempotency.Cache

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	ownsTransport bool
	metricsServer *http.Server
}

// New constructs a Gateway for the supplied configuration. The broker
// connection is retried a bounded number of times before giving up.
func New(ctx context.Context, conf *config.Config, log logging.ServiceLogger, deps Dependencies) (*Gateway, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("action registry is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("auth verifier is required")
	}
	if deps.Cache == nil {
		return nil, errors.New("idempotency cache is required")
	}

	wmLogger := logging.NewWatermillAdapter(log)
	log.Info("Creating gateway",
		logging.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	g := &Gateway{
		Conf:     conf,
		Logger:   log,
		registry: deps.Registry,
		verifier: deps.Verifier,
		cache:    deps.Cache,
	}

	if deps.Transport != nil {
		g.publisher = deps.Transport.Publisher
		g.subscriber = deps.Transport.Subscriber
	} else {
		t, err := transport.BuildWithRetry(ctx, conf, wmLogger,
			conf.ConnectAttempts, conf.ConnectDelay)
		if err != nil {
			return nil, err
		}
		g.publisher = t.Publisher
		g.subscriber = t.Subscriber
		g.ownsTransport = true
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	g.router = router
	g.router.AddPlugin(plugin.SignalsHandler)

	if err := g.registerMiddlewares(); err != nil {
		return nil, err
	}

	g.router.AddNoPublisherHandler(
		"taskgate_requests",
		conf.RequestQueue,
		g.subscriber,
		g.handleRequest,
	)

	if err := g.initializeQueues(); err != nil {
		return nil, err
	}

	return g, nil
}

// initializeQueues declares the gateway's queue topology up front so responses
// and dead letters are not dropped before anyone subscribes.
func (g *Gateway) initializeQueues() error {
	initializer, ok := g.subscriber.(message.SubscribeInitializer)
	if !ok {
		return nil
	}

	for _, topic := range []string{g.Conf.RequestQueue, g.Conf.ResponseQueue, g.Conf.DeadLetterQueue} {
		if err := initializer.SubscribeInitialize(topic); err != nil {
			return fmt.Errorf("failed to initialize queue %s: %w", topic, err)
		}
	}
	return nil
}

// Start runs the router until the provided context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	g.startMetricsServer()
	return routerRun(g.router, ctx)
}

// Running is closed when all router handlers are up and consuming.
func (g *Gateway) Running() chan struct{} {
	return g.router.Running()
}

// Close shuts down the router and, when the gateway owns the transport, the
// broker connection.
func (g *Gateway) Close() error {
	var errs []error

	if g.metricsServer != nil {
		errs = append(errs, g.metricsServer.Close())
	}
	if g.router != nil {
		errs = append(errs, g.router.Close())
	}
	if g.ownsTransport {
		if g.publisher != nil {
			errs = append(errs, g.publisher.Close())
		}
		if g.subscriber != nil {
			errs = append(errs, g.subscriber.Close())
		}
	}

	return errors.Join(errs...)
}

// handleRequest is the single consuming handler. Returning an
// UnprocessableRequestError routes the message to the dead letter queue;
// any other error nacks the message for redelivery.
func (g *Gateway) handleRequest(msg *message.Message) error {
	req, err := protocol.ParseRequest(msg.Payload)
	if err != nil {
		g.Logger.Error("Discarding malformed request", err, logging.LogFields{
			"message_uuid": msg.UUID,
		})
		return protocol.NewUnprocessable(msg.Payload, err)
	}

	if !g.verifier.Verify(req.Auth) {
		g.Logger.Info("Rejecting unauthenticated request", logging.LogFields{
			"request_id": req.ID,
			"action":     req.Action,
		})
		return g.respond(msg, req, protocol.NewError(req.ID, "Unauthorized"), false)
	}

	if cached, ok := g.cache.Lookup(req.ID); ok {
		g.Logger.Info("Replaying cached response", logging.LogFields{
			"request_id": req.ID,
		})
		return g.publishRaw(msg, req.ID, cached)
	}

	action, ok := g.registry.Lookup(req.Version, req.Action)
	if !ok {
		g.Logger.Info("Rejecting unknown action", logging.LogFields{
			"request_id": req.ID,
			"version":    req.Version,
			"action":     req.Action,
		})
		return g.respond(msg, req,
			protocol.NewError(req.ID, fmt.Sprintf("Unknown action: %s for version %s", req.Action, req.Version)),
			false)
	}

	result, err := action(msg.Context(), req.Data)

	var resp *protocol.Response
	if err != nil {
		resp = protocol.NewError(req.ID, err.Error())
	} else {
		resp = protocol.OK(req.ID, result)
	}

	return g.respond(msg, req, resp, true)
}

// respond encodes and publishes a response. When cache is true the encoded
// payload is stored first so a redelivered request replays the identical
// bytes instead of re-executing the action. Encoding failures are
// deterministic, so they dead-letter the request instead of nacking it into
// an endless redelivery loop; publish failures stay transient and nack.
func (g *Gateway) respond(msg *message.Message, req *protocol.Request, resp *protocol.Response, cache bool) error {
	payload, err := resp.Encode()
	if err != nil {
		g.Logger.Error("Discarding request with unencodable response", err, logging.LogFields{
			"request_id": req.ID,
		})
		return protocol.NewUnprocessable(msg.Payload, fmt.Errorf("failed to encode response for request %s: %w", req.ID, err))
	}

	if cache {
		g.cache.Store(req.ID, payload)
	}

	return g.publishRaw(msg, req.ID, payload)
}

// publishRaw sends the payload to the request's reply destination, falling
// back to the default response queue when the caller did not name one. The
// transport-level correlation id wins over the envelope id so callers that
// set their own correlation metadata get it echoed back.
func (g *Gateway) publishRaw(msg *message.Message, correlationID string, payload []byte) error {
	destination := msg.Metadata.Get(protocol.MetadataKeyReplyTo)
	if destination == "" {
		destination = g.Conf.ResponseQueue
	}

	if metaCorrelation := msg.Metadata.Get(protocol.MetadataKeyCorrelationID); metaCorrelation != "" {
		correlationID = metaCorrelation
	}

	out := message.NewMessage(ids.New(), payload)
	out.Metadata.Set(protocol.MetadataKeyCorrelationID, correlationID)
	if ctx := msg.Context(); ctx != nil {
		out.SetContext(ctx)
	}

	if err := g.publisher.Publish(destination, out); err != nil {
		return fmt.Errorf("failed to publish response to %s: %w", destination, err)
	}

	g.Logger.Debug("Published response", logging.LogFields{
		"destination":    destination,
		"correlation_id": correlationID,
	})
	return nil
}
