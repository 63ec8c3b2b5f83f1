package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

const followBuffer = 64

// Publisher broadcasts an appended event.
type Publisher interface {
	PublishEvent(ctx context.Context, event types.Event) error
}

// Follower streams events for one job until ctx is done.
type Follower interface {
	Follow(ctx context.Context, jobID string) (<-chan types.Event, error)
}

// PublishingLog is a store.EventLog that publishes every appended event.
type PublishingLog struct {
	store.EventLog
	pub    Publisher
	logger *slog.Logger
}

// NewPublishingLog wraps log so appends are also published on pub.
func NewPublishingLog(log store.EventLog, pub Publisher, logger *slog.Logger) *PublishingLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingLog{EventLog: log, pub: pub, logger: logger}
}

// Append stores the event, then publishes it. Publish failures are logged.
func (l *PublishingLog) Append(ctx context.Context, event types.Event) (types.Event, error) {
	stored, err := l.EventLog.Append(ctx, event)
	if err != nil {
		return stored, err
	}
	if err := l.pub.PublishEvent(ctx, stored); err != nil {
		l.logger.Warn("failed to publish event",
			slog.String("job_id", stored.JobID),
			slog.String("event_type", string(stored.Type)),
			slog.Any("error", err))
	}
	return stored, nil
}

// Hub is an in-process Publisher and Follower.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan types.Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan types.Event]struct{})}
}

// PublishEvent implements Publisher. Slow followers miss events.
func (h *Hub) PublishEvent(_ context.Context, event types.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Follow implements Follower.
func (h *Hub) Follow(ctx context.Context, jobID string) (<-chan types.Event, error) {
	ch := make(chan types.Event, followBuffer)
	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan types.Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[jobID], ch)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
