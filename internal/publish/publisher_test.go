package publish_test

import (
	"YieldVault/internal/publish"
	"YieldVault/internal/testutil"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestOutboundPublisher_RoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := publish.ConnectNATS(testutil.TestNATSURL())
	if err != nil {
		t.Skipf("test NATS not available: %v (start with: docker compose -f docker-compose.test.yml up -d)", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := publish.EnsureOutboundStream(ctx, js); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	input := make(chan publish.PublishableEvent, 4)
	pub := publish.NewOutboundPublisher(js, input, nil)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan struct{})
	go func() {
		pub.Run(runCtx)
		close(done)
	}()

	sent := publish.PublishableEvent{
		Sequence:       7,
		EventType:      "Deposit",
		IdempotencyKey: "round-trip-test",
		Payload:        json.RawMessage(`{"assets":100}`),
		Timestamp:      time.Now().UTC(),
	}
	input <- sent

	cons, err := js.CreateOrUpdateConsumer(ctx, "VAULT_EVENTS", jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: "vault.ledger.events.Deposit",
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	batch, err := cons.Fetch(1, jetstream.FetchMaxWait(10*time.Second))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	var got publish.PublishableEvent
	received := false
	for msg := range batch.Messages() {
		if err := json.Unmarshal(msg.Data(), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		msg.Ack()
		received = true
	}
	if err := batch.Error(); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !received {
		t.Fatal("no message received on the outbound stream")
	}
	if got.Sequence != sent.Sequence || got.EventType != sent.EventType {
		t.Errorf("got %+v, want %+v", got, sent)
	}

	stop()
	<-done
}
