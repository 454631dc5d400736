// Package client implements the calling side of the gateway protocol: it
// publishes request envelopes, listens on a private reply destination, and
// hands each response back to the waiting caller by correlation id.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/tidwall/gjson"

	"github.com/drblury/taskgate/internal/config"
	"github.com/drblury/taskgate/internal/ids"
	"github.com/drblury/taskgate/internal/jsoncodec"
	"github.com/drblury/taskgate/internal/logging"
	"github.com/drblury/taskgate/internal/protocol"
	"github.com/drblury/taskgate/internal/transport"
)

// ErrClosed is returned by Call after Close.
var ErrClosed = errors.New("client is closed")

// Dependencies holds optional collaborators. Transport overrides the broker
// connection built from config; the client does not close an injected
// transport.
type Dependencies struct {
	Transport *transport.Transport
}

// Client issues RPC-style calls over the broker. Safe for concurrent use.
type Client struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	replyTopic string

	ownsTransport bool

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New connects the client and starts its reply dispatcher. Every client gets
// its own reply destination so concurrent clients never steal each other's
// responses; the transport is built through the reply builder so the
// destination is removed with the client on brokers that support it.
func New(ctx context.Context, conf *config.Config, log logging.ServiceLogger, deps Dependencies) (*Client, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	wmLogger := logging.NewWatermillAdapter(log)

	c := &Client{
		Conf:       conf,
		Logger:     log,
		replyTopic: conf.ResponseQueue + ".reply." + ids.New(),
		pending:    make(map[string]chan []byte),
		done:       make(chan struct{}),
	}

	if deps.Transport != nil {
		c.publisher = deps.Transport.Publisher
		c.subscriber = deps.Transport.Subscriber
	} else {
		t, err := transport.BuildReplyWithRetry(ctx, conf, wmLogger,
			conf.ConnectAttempts, conf.ConnectDelay)
		if err != nil {
			return nil, err
		}
		c.publisher = t.Publisher
		c.subscriber = t.Subscriber
		c.ownsTransport = true
	}

	subCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	messages, err := c.subscriber.Subscribe(subCtx, c.replyTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to reply destination %s: %w", c.replyTopic, err)
	}

	go c.dispatch(messages)

	log.Info("Client connected", logging.LogFields{
		"reply_topic": c.replyTopic,
	})
	return c, nil
}

// dispatch routes incoming responses to the pending call waiting on their
// correlation id. Responses nobody waits for (late replies after a timeout)
// are logged and dropped.
func (c *Client) dispatch(messages <-chan *message.Message) {
	defer close(c.done)

	for msg := range messages {
		correlationID := msg.Metadata.Get(protocol.MetadataKeyCorrelationID)
		if correlationID == "" {
			correlationID = gjson.GetBytes(msg.Payload, "correlation_id").String()
		}

		c.mu.Lock()
		waiter, ok := c.pending[correlationID]
		if ok {
			delete(c.pending, correlationID)
		}
		c.mu.Unlock()

		if ok {
			waiter <- msg.Payload
		} else {
			c.Logger.Debug("Dropping uncorrelated response", logging.LogFields{
				"correlation_id": correlationID,
				"payload":        string(msg.Payload),
			})
		}
		msg.Ack()
	}
}

// Call publishes a request and blocks until the correlated response arrives
// or the context expires. When the caller's context carries no deadline the
// configured call timeout applies, so a dead gateway cannot hang the caller
// forever.
func (c *Client) Call(ctx context.Context, version, action string, data map[string]any) (*protocol.Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Conf.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Conf.CallTimeout)
		defer cancel()
	}

	requestID := ids.New()
	req := protocol.Request{
		ID:      requestID,
		Version: version,
		Action:  action,
		Data:    data,
		Auth:    c.Conf.APIKey,
	}

	payload, err := jsoncodec.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	waiter := make(chan []byte, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[requestID] = waiter
	c.mu.Unlock()

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata.Set(protocol.MetadataKeyReplyTo, c.replyTopic)
	msg.Metadata.Set(protocol.MetadataKeyCorrelationID, requestID)
	msg.SetContext(ctx)

	if err := c.publisher.Publish(c.Conf.RequestQueue, msg); err != nil {
		c.forget(requestID)
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case responsePayload := <-waiter:
		return protocol.ParseResponse(responsePayload)
	case <-ctx.Done():
		c.forget(requestID)
		return nil, fmt.Errorf("call %s/%s timed out: %w", version, action, ctx.Err())
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// Close stops the reply dispatcher and, when the client owns the transport,
// closes the broker connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	var errs []error
	if c.ownsTransport {
		if c.publisher != nil {
			errs = append(errs, c.publisher.Close())
		}
		if c.subscriber != nil {
			errs = append(errs, c.subscriber.Close())
		}
	}
	<-c.done

	return errors.Join(errs...)
}
