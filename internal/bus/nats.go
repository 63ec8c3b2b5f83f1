// Package bus fans job events out to live followers. Events are appended to
// the durable log first; publication is best effort and a follower that
// misses a message can always re-read the log.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jonathan/video-refinery/internal/types"
)

// SubjectPrefix prefixes every per-job event subject.
const SubjectPrefix = "refinery.events."

// Subject returns the subject events for jobID are published on.
func Subject(jobID string) string {
	return SubjectPrefix + jobID
}

// Client is a NATS connection that publishes and follows job events.
type Client struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS, reconnecting forever.
func Connect(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("video-refinery"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &Client{nc: nc, logger: logger}, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// PublishEvent implements Publisher.
func (c *Client) PublishEvent(_ context.Context, event types.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.nc.Publish(Subject(event.JobID), b)
}

// Follow implements Follower. The channel closes when ctx is done.
func (c *Client) Follow(ctx context.Context, jobID string) (<-chan types.Event, error) {
	out := make(chan types.Event, followBuffer)
	sub, err := c.nc.Subscribe(Subject(jobID), func(msg *nats.Msg) {
		var event types.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Warn("dropping malformed event", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		select {
		case out <- event:
		default:
			c.logger.Warn("follower is slow, dropping event", slog.String("job_id", jobID))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Subject(jobID), err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		close(out)
	}()
	return out, nil
}
