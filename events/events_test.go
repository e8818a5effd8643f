package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mod-update-notifier/diff"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicModCreated, ModChanged{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNewWithoutURLIsNoop(t *testing.T) {
	pub, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := pub.(*NoopPublisher); !ok {
		t.Errorf("expected *NoopPublisher, got %T", pub)
	}
}

func TestTopicFor(t *testing.T) {
	tests := map[diff.Kind]string{
		diff.Created:         TopicModCreated,
		diff.VersionBumped:   TopicModVersionBumped,
		diff.MetadataChanged: TopicModMetadataChanged,
	}
	for kind, want := range tests {
		if got := TopicFor(kind); got != want {
			t.Errorf("TopicFor(%s) = %q, want %q", kind, got, want)
		}
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe("modnotifier.mod.>", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	previous := "1.0.0"
	ev := diff.ChangeEvent{Slug: "bigbertha", Kind: diff.VersionBumped, PreviousVersion: &previous, NewVersion: "1.2.0", Owner: "bertha"}
	if err := pub.Publish(context.Background(), TopicFor(ev.Kind), NewModChanged("cycle-1", ev)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pub.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Subject != TopicModVersionBumped {
			t.Errorf("subject = %q, want %q", msg.Subject, TopicModVersionBumped)
		}
		var got ModChanged
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Name != "bigbertha" || got.Version != "1.2.0" || got.CycleID != "cycle-1" {
			t.Errorf("unexpected payload: %+v", got)
		}
		if got.PreviousVersion == nil || *got.PreviousVersion != "1.0.0" {
			t.Errorf("previous version = %v, want 1.0.0", got.PreviousVersion)
		}
		if got.Kind != "version_bumped" {
			t.Errorf("kind = %q", got.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicCycleCompleted, CycleCompleted{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNATSPublisher_ConnectFailure(t *testing.T) {
	if _, err := NewNATSPublisher("nats://127.0.0.1:1", nats.Timeout(100*time.Millisecond)); err == nil {
		t.Error("expected connection error")
	}
}
