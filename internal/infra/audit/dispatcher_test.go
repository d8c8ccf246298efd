package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-platform-sessions/internal/core/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	block  chan struct{}
	err    error
}

func (s *recordingSink) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) delivered() []domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcher_ForwardsEvents(t *testing.T) {
	sink := &recordingSink{}
	dispatcher := NewDispatcher(sink, zaptest.NewLogger(t), Options{BufferSize: 8})

	event := domain.SecurityEvent{
		Type:     domain.EventTokenReuseDetected,
		Severity: domain.SeverityCritical,
		OwnerID:  "owner-1",
		FamilyID: "family-1",
	}

	if err := dispatcher.PublishSecurityEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishSecurityEvent returned error: %v", err)
	}

	dispatcher.Close()

	delivered := sink.delivered()
	if len(delivered) != 1 {
		t.Fatalf("expected 1 event delivered, got %d", len(delivered))
	}
	if delivered[0].ID == "" {
		t.Fatalf("expected event id to be assigned")
	}
	if delivered[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be stamped")
	}
	if delivered[0].Type != domain.EventTokenReuseDetected {
		t.Fatalf("expected event type preserved, got %s", delivered[0].Type)
	}
}

func TestDispatcher_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	release := make(chan struct{})
	sink := &recordingSink{block: release}

	var drops atomic.Int64
	dispatcher := NewDispatcher(sink, zaptest.NewLogger(t), Options{
		BufferSize: 1,
		OnDrop:     func() { drops.Add(1) },
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = dispatcher.PublishSecurityEvent(context.Background(), domain.SecurityEvent{
				Type:     domain.EventSessionExpired,
				Severity: domain.SeverityInfo,
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PublishSecurityEvent blocked on a full buffer")
	}

	close(release)
	dispatcher.Close()

	dropped := drops.Load()
	if dropped == 0 {
		t.Fatalf("expected at least one event to be dropped")
	}
	if got := int64(len(sink.delivered())) + dropped; got != 5 {
		t.Fatalf("expected delivered+dropped to equal 5, got %d", got)
	}
}

func TestDispatcher_SinkFailureNeverReachesCaller(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker unavailable")}
	dispatcher := NewDispatcher(sink, zaptest.NewLogger(t), Options{BufferSize: 4})

	if err := dispatcher.PublishSecurityEvent(context.Background(), domain.SecurityEvent{
		Type:     domain.EventLoginFailed,
		Severity: domain.SeverityWarn,
	}); err != nil {
		t.Fatalf("expected sink failure to be absorbed, got %v", err)
	}

	dispatcher.Close()
}
