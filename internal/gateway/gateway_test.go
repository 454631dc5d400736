package gateway

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/taskgate/internal/auth"
	"github.com/drblury/taskgate/internal/config"
	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
	handlersv1 "github.com/drblury/taskgate/internal/handlers/v1"
	handlersv2 "github.com/drblury/taskgate/internal/handlers/v2"
	"github.com/drblury/taskgate/internal/idempotency"
	"github.com/drblury/taskgate/internal/ids"
	"github.com/drblury/taskgate/internal/jsoncodec"
	"github.com/drblury/taskgate/internal/logging"
	"github.com/drblury/taskgate/internal/protocol"
	"github.com/drblury/taskgate/internal/transport"
)

type testEnv struct {
	gateway  *Gateway
	pubSub   *gochannel.GoChannel
	conf     *config.Config
	store    *domain.Store
	cache    *idempotency.Cache
	registry *handlers.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	wmLogger := watermill.NopLogger{}
	// Buffered so bursts of publishes do not block on slow consumers.
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)

	conf := config.Default()
	conf.PubSubSystem = "channel"
	conf.MetricsEnabled = false

	store := domain.NewStore()
	registry := handlers.NewRegistry()
	handlersv1.Register(registry, store)
	handlersv2.Register(registry, store)

	cache := idempotency.New(conf.IdempotencyTTL)

	g, err := New(context.Background(), conf, logging.NewWatermillServiceLogger(wmLogger), Dependencies{
		Registry:  registry,
		Verifier:  auth.NewSharedSecret(conf.APIKey),
		Cache:     cache,
		Transport: &transport.Transport{Publisher: pubSub, Subscriber: pubSub},
	})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = g.Start(ctx)
	}()

	select {
	case <-g.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not start in time")
	}

	t.Cleanup(func() {
		cancel()
		_ = g.Close()
		_ = pubSub.Close()
	})

	return &testEnv{
		gateway:  g,
		pubSub:   pubSub,
		conf:     conf,
		store:    store,
		cache:    cache,
		registry: registry,
	}
}

// subscribe opens a consumer on the topic before anything is published there;
// the in-memory transport drops messages with no subscribers.
func (e *testEnv) subscribe(t *testing.T, topic string) <-chan *message.Message {
	t.Helper()

	messages, err := e.pubSub.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("failed to subscribe to %s: %v", topic, err)
	}
	return messages
}

func (e *testEnv) send(t *testing.T, replyTo string, req protocol.Request) {
	t.Helper()

	payload, err := jsoncodec.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	msg := message.NewMessage(ids.New(), payload)
	if replyTo != "" {
		msg.Metadata.Set(protocol.MetadataKeyReplyTo, replyTo)
	}
	if err := e.pubSub.Publish(e.conf.RequestQueue, msg); err != nil {
		t.Fatalf("failed to publish request: %v", err)
	}
}

func receive(t *testing.T, messages <-chan *message.Message, timeout time.Duration) *message.Message {
	t.Helper()

	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func expectNoMessage(t *testing.T, messages <-chan *message.Message, wait time.Duration) {
	t.Helper()

	select {
	case msg := <-messages:
		msg.Ack()
		t.Fatalf("unexpected message: %s", msg.Payload)
	case <-time.After(wait):
	}
}

func TestRoundTripCreateProject(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	reqID := ids.New()
	env.send(t, "test.replies", protocol.Request{
		ID:      reqID,
		Version: "v1",
		Action:  "create_project",
		Data:    map[string]any{"name": "Apollo", "description": "moonshot"},
		Auth:    env.conf.APIKey,
	})

	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.CorrelationID != reqID {
		t.Errorf("expected correlation id %s, got %s", reqID, resp.CorrelationID)
	}
	if resp.Status != protocol.StatusOK {
		t.Fatalf("expected ok status, got %s (%s)", resp.Status, resp.Error)
	}
	if got := msg.Metadata.Get(protocol.MetadataKeyCorrelationID); got != reqID {
		t.Errorf("expected correlation metadata %s, got %s", reqID, got)
	}

	projects := env.store.Projects()
	if len(projects) != 1 || projects[0].Name != "Apollo" {
		t.Errorf("expected one project named Apollo, got %+v", projects)
	}
}

func TestIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	reqID := ids.New()
	first := protocol.Request{
		ID:      reqID,
		Version: "v1",
		Action:  "create_user",
		Data:    map[string]any{"name": "Ada", "email": "ada@example.com"},
		Auth:    env.conf.APIKey,
	}

	env.send(t, "test.replies", first)
	firstResp := receive(t, replies, 5*time.Second)

	// Same envelope id with different data must replay the cached response
	// and must not touch the store again.
	second := first
	second.Data = map[string]any{"name": "Eve", "email": "eve@example.com"}
	env.send(t, "test.replies", second)
	secondResp := receive(t, replies, 5*time.Second)

	if !bytes.Equal(firstResp.Payload, secondResp.Payload) {
		t.Errorf("replayed response differs:\nfirst:  %s\nsecond: %s", firstResp.Payload, secondResp.Payload)
	}
	if users := env.store.Users(); len(users) != 1 {
		t.Errorf("expected one user, got %d", len(users))
	}
}

func TestUnauthorizedNotCached(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	env.send(t, "test.replies", protocol.Request{
		ID:      ids.New(),
		Version: "v1",
		Action:  "create_project",
		Data:    map[string]any{"name": "secret"},
		Auth:    "wrong-key",
	})

	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Status != protocol.StatusError || resp.Error != "Unauthorized" {
		t.Errorf("expected Unauthorized error, got %+v", resp)
	}
	if len(env.store.Projects()) != 0 {
		t.Error("unauthenticated request must not create a project")
	}
	if env.cache.Len() != 0 {
		t.Error("auth failures must not be cached")
	}
}

func TestUnknownActionNotCached(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	env.send(t, "test.replies", protocol.Request{
		ID:      ids.New(),
		Version: "v9",
		Action:  "explode",
		Auth:    env.conf.APIKey,
	})

	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Status != protocol.StatusError {
		t.Fatalf("expected error status, got %s", resp.Status)
	}
	if resp.Error != "Unknown action: explode for version v9" {
		t.Errorf("unexpected error message: %q", resp.Error)
	}
	if env.cache.Len() != 0 {
		t.Error("unknown actions must not be cached")
	}
}

func TestActionErrorsAreCached(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	reqID := ids.New()
	req := protocol.Request{
		ID:      reqID,
		Version: "v1",
		Action:  "get_project",
		Data:    map[string]any{"id": 42},
		Auth:    env.conf.APIKey,
	}

	env.send(t, "test.replies", req)
	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Status != protocol.StatusError || resp.Error != "Project not found" {
		t.Errorf("expected Project not found, got %+v", resp)
	}
	if _, ok := env.cache.Lookup(reqID); !ok {
		t.Error("completed error responses must be cached for replay")
	}
}

func TestMalformedRequestDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, env.conf.ResponseQueue)
	deadLetters := env.subscribe(t, env.conf.DeadLetterQueue)

	msg := message.NewMessage(ids.New(), []byte("this is not json"))
	if err := env.pubSub.Publish(env.conf.RequestQueue, msg); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	poisoned := receive(t, deadLetters, 5*time.Second)
	if !bytes.Equal(poisoned.Payload, []byte("this is not json")) {
		t.Errorf("dead letter payload changed: %s", poisoned.Payload)
	}
	if reason := poisoned.Metadata.Get(middleware.ReasonForPoisonedKey); reason == "" {
		t.Error("expected dead letter to carry a reason annotation")
	}
	expectNoMessage(t, replies, 200*time.Millisecond)
}

func TestUnencodableResponseDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register("v1", "corrupt_result", func(ctx context.Context, data map[string]any) (any, error) {
		return map[string]any{"bad": make(chan int)}, nil
	})

	replies := env.subscribe(t, "test.replies")
	deadLetters := env.subscribe(t, env.conf.DeadLetterQueue)

	env.send(t, "test.replies", protocol.Request{
		ID:      ids.New(),
		Version: "v1",
		Action:  "corrupt_result",
		Auth:    env.conf.APIKey,
	})

	poisoned := receive(t, deadLetters, 5*time.Second)
	if reason := poisoned.Metadata.Get(middleware.ReasonForPoisonedKey); reason == "" {
		t.Error("expected dead letter to carry a reason annotation")
	}
	expectNoMessage(t, replies, 200*time.Millisecond)
}

func TestMissingEnvelopeFieldsDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	deadLetters := env.subscribe(t, env.conf.DeadLetterQueue)

	msg := message.NewMessage(ids.New(), []byte(`{"id":"abc","action":"create_project"}`))
	if err := env.pubSub.Publish(env.conf.RequestQueue, msg); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	receive(t, deadLetters, 5*time.Second)
}

func TestReplyToFallback(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, env.conf.ResponseQueue)

	reqID := ids.New()
	env.send(t, "", protocol.Request{
		ID:      reqID,
		Version: "v1",
		Action:  "list_projects",
		Auth:    env.conf.APIKey,
	})

	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.CorrelationID != reqID {
		t.Errorf("expected correlation id %s, got %s", reqID, resp.CorrelationID)
	}
}

func TestConcurrentRequestsKeepCorrelation(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	const count = 20
	sent := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		reqID := ids.New()
		sent[reqID] = false
		env.send(t, "test.replies", protocol.Request{
			ID:      reqID,
			Version: "v1",
			Action:  "create_project",
			Data:    map[string]any{"name": "project"},
			Auth:    env.conf.APIKey,
		})
	}

	for i := 0; i < count; i++ {
		msg := receive(t, replies, 5*time.Second)
		resp, err := protocol.ParseResponse(msg.Payload)
		if err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		seen, ok := sent[resp.CorrelationID]
		if !ok {
			t.Fatalf("unknown correlation id %s", resp.CorrelationID)
		}
		if seen {
			t.Fatalf("duplicate correlation id %s", resp.CorrelationID)
		}
		sent[resp.CorrelationID] = true
	}

	if got := len(env.store.Projects()); got != count {
		t.Errorf("expected %d projects, got %d", count, got)
	}
}

func TestV2TaskRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	replies := env.subscribe(t, "test.replies")

	env.send(t, "test.replies", protocol.Request{
		ID:      ids.New(),
		Version: "v1",
		Action:  "create_project",
		Data:    map[string]any{"name": "Apollo"},
		Auth:    env.conf.APIKey,
	})
	receive(t, replies, 5*time.Second)

	env.send(t, "test.replies", protocol.Request{
		ID:      ids.New(),
		Version: "v2",
		Action:  "create_task",
		Data:    map[string]any{"project_id": 1, "title": "dock", "priority": 5},
		Auth:    env.conf.APIKey,
	})

	msg := receive(t, replies, 5*time.Second)
	resp, err := protocol.ParseResponse(msg.Payload)
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != protocol.StatusOK {
		t.Fatalf("expected ok, got %s (%s)", resp.Status, resp.Error)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected task object, got %T", resp.Data)
	}
	if data["priority"] != float64(5) {
		t.Errorf("expected priority 5, got %v", data["priority"])
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	conf := config.Default()
	logger := logging.NewWatermillServiceLogger(watermill.NopLogger{})

	_, err := New(context.Background(), conf, logger, Dependencies{})
	if err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
