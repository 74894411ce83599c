// Package stream pushes freshly computed composite scores to subscribers.
// Each subscription owns one goroutine and two tickers (recompute and
// heartbeat), torn down when the subscriber closes or its context ends.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/metrics"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Recompute interval bounds. Requested intervals clamp into this range.
const (
	MinInterval      = 5 * time.Second
	MaxInterval      = 30 * time.Second
	DefaultHeartbeat = 15 * time.Second
)

// EventType discriminates stream events.
type EventType string

const (
	EventScore EventType = "score"
	EventPing  EventType = "ping"
	EventError EventType = "error"
)

// Event is one message pushed to a subscriber. Score is set for score
// events; Err carries the message for error events.
type Event struct {
	Type  EventType             `json:"type"`
	Score *trust.CompositeScore `json:"score,omitempty"`
	Err   string                `json:"error,omitempty"`
	At    time.Time             `json:"at"`
}

// Scorer computes composite scores; the engine satisfies it.
type Scorer interface {
	CompositeScore(ctx context.Context, address, appID string) (trust.CompositeScore, error)
}

// Options tune one subscription.
type Options struct {
	Interval  time.Duration // recompute period, clamped to [MinInterval, MaxInterval]
	Heartbeat time.Duration // ping period; DefaultHeartbeat when zero
}

// Streamer creates score subscriptions over one scorer.
type Streamer struct {
	scorer Scorer
	log    *logger.Logger
	now    func() time.Time
}

// NewStreamer creates a streamer.
func NewStreamer(scorer Scorer, log *logger.Logger) *Streamer {
	if log == nil {
		log = logger.NewDefault("trust-stream")
	}
	return &Streamer{
		scorer: scorer,
		log:    log,
		now:    time.Now,
	}
}

// Subscription is one live score feed. Events closes after Close is called
// or the subscription context ends.
type Subscription struct {
	Address string
	AppID   string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close tears the subscription down. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Subscribe starts a feed for (address, app). The first score is computed and
// pushed immediately; afterwards scores recompute on the clamped interval and
// pings arrive on the heartbeat period. Score computation failures are pushed
// as error events and the feed continues.
func (s *Streamer) Subscribe(ctx context.Context, address, appID string, opts Options) *Subscription {
	interval := clampInterval(opts.Interval)
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	sub := &Subscription{
		Address: address,
		AppID:   appID,
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}

	metrics.SubscriptionOpened()
	s.log.WithField("address", address).
		WithField("app_id", appID).
		WithField("interval", interval.String()).
		Info("score subscription opened")

	go s.run(ctx, sub, interval, heartbeat)
	return sub
}

func (s *Streamer) run(ctx context.Context, sub *Subscription, interval, heartbeat time.Duration) {
	recompute := time.NewTicker(interval)
	ping := time.NewTicker(heartbeat)
	defer func() {
		recompute.Stop()
		ping.Stop()
		close(sub.events)
		metrics.SubscriptionClosed()
		s.log.WithField("address", sub.Address).
			WithField("app_id", sub.AppID).
			Info("score subscription closed")
	}()

	s.pushScore(ctx, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-recompute.C:
			s.pushScore(ctx, sub)
		case <-ping.C:
			sub.push(Event{Type: EventPing, At: s.now().UTC()})
		}
	}
}

func (s *Streamer) pushScore(ctx context.Context, sub *Subscription) {
	score, err := s.scorer.CompositeScore(ctx, sub.Address, sub.AppID)
	if err != nil {
		sub.push(Event{Type: EventError, Err: err.Error(), At: s.now().UTC()})
		return
	}
	sub.push(Event{Type: EventScore, Score: &score, At: s.now().UTC()})
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// push drops the event when the subscriber's buffer is full; a stalled
// consumer must not block the feed goroutine.
func (s *Subscription) push(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
	}
}
