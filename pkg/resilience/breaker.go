package resilience

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"counseling-portal-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/patrickmn/go-cache"
)

// BreakerTopic is the in-process watermill topic breaker transitions are
// published on.
const BreakerTopic = "breaker.events"

// RetryState is the per-operation-class record the breaker maintains. It is
// mirrored as-is into the shared store for cross-instance visibility.
type RetryState struct {
	Class       string    `json:"class"`
	Attempts    int       `json:"attempts"`
	CircuitOpen bool      `json:"circuit_open"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
	LastFailure string    `json:"last_failure,omitempty"`
}

// BreakerEvent describes a breaker transition: "opened", "closed" or "reset".
type BreakerEvent struct {
	Class      string    `json:"class"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	BreakerOpened = "opened"
	BreakerClosed = "closed"
	BreakerReset  = "reset"
)

// Breaker owns one RetryState per operation class.
//
// CLOSED -> OPEN after maxAttempts consecutive failures,
// OPEN -> CLOSED after cooldown elapses or an explicit Reset.
// While OPEN, Allow fails with ErrCircuitOpen and nothing touches the network.
type Breaker struct {
	maxAttempts int
	cooldown    time.Duration

	mu     sync.Mutex
	states *cache.Cache // class -> *RetryState

	pubSub *gochannel.GoChannel
	mirror *Mirror
	logger logger.ILogger

	// Injectable clock for tests.
	now func() time.Time
}

func NewBreaker(maxAttempts int, cooldown time.Duration, pubSub *gochannel.GoChannel, mirror *Mirror, log logger.ILogger) *Breaker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Breaker{
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		states:      cache.New(cache.NoExpiration, 10*time.Minute),
		pubSub:      pubSub,
		mirror:      mirror,
		logger:      log,
		now:         time.Now,
	}
}

func (b *Breaker) state(class string) *RetryState {
	if x, found := b.states.Get(class); found {
		return x.(*RetryState)
	}
	st := &RetryState{Class: class}
	b.states.Set(class, st, cache.NoExpiration)
	return st
}

// State returns a copy of the current RetryState for a class.
func (b *Breaker) State(class string) RetryState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.state(class)
}

// Allow reports whether a call for the class may proceed. An open circuit whose
// cooldown has elapsed is demoted back to closed here, so the next call after
// the cooldown executes normally.
func (b *Breaker) Allow(class string) error {
	b.mu.Lock()
	st := b.state(class)
	if !st.CircuitOpen {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(st.OpenedAt) >= b.cooldown {
		st.CircuitOpen = false
		st.Attempts = 0
		st.OpenedAt = time.Time{}
		snapshot := *st
		b.mu.Unlock()
		b.publish(BreakerEvent{Class: class, Kind: BreakerClosed, OccurredAt: b.now()}, snapshot)
		return nil
	}
	b.mu.Unlock()
	return ErrCircuitOpen
}

// RecordFailure counts a failed attempt and returns the updated attempt count
// plus whether this failure tripped the circuit.
func (b *Breaker) RecordFailure(class string, cause error) (attempts int, opened bool) {
	b.mu.Lock()
	st := b.state(class)
	st.Attempts++
	if cause != nil {
		st.LastFailure = cause.Error()
	}
	if st.Attempts >= b.maxAttempts && !st.CircuitOpen {
		st.CircuitOpen = true
		st.OpenedAt = b.now()
		opened = true
	}
	attempts = st.Attempts
	snapshot := *st
	b.mu.Unlock()

	if opened {
		b.logger.Warn("Breaker", "Circuit opened", map[string]interface{}{
			"class":    class,
			"attempts": attempts,
			"cause":    snapshot.LastFailure,
		})
		b.publish(BreakerEvent{Class: class, Kind: BreakerOpened, OccurredAt: b.now()}, snapshot)
	} else if b.mirror != nil {
		b.mirror.Publish(context.Background(), snapshot)
	}
	return attempts, opened
}

// RecordSuccess resets the class to a clean closed state.
func (b *Breaker) RecordSuccess(class string) {
	b.transitionClosed(class, BreakerClosed)
}

// Reset forces a class back to CLOSED without waiting for the cooldown, e.g.
// on a connectivity-restored signal.
func (b *Breaker) Reset(class string) {
	b.transitionClosed(class, BreakerReset)
}

func (b *Breaker) transitionClosed(class, kind string) {
	b.mu.Lock()
	st := b.state(class)
	changed := st.CircuitOpen || st.Attempts > 0
	st.Attempts = 0
	st.CircuitOpen = false
	st.OpenedAt = time.Time{}
	st.LastFailure = ""
	snapshot := *st
	b.mu.Unlock()

	if changed {
		b.publish(BreakerEvent{Class: class, Kind: kind, OccurredAt: b.now()}, snapshot)
	}
}

// Preload seeds classes from the shared mirror at startup, so a freshly
// started instance converges on an already-open circuit instead of
// re-deriving the failures from scratch. Best effort, like the mirror itself.
func (b *Breaker) Preload(ctx context.Context, classes ...string) {
	if b.mirror == nil {
		return
	}
	for _, class := range classes {
		st, err := b.mirror.Load(ctx, class)
		if err != nil {
			b.logger.Warn("Breaker", "Failed to load mirrored breaker state", map[string]interface{}{"class": class, "error": err.Error()})
			continue
		}
		if st != nil {
			b.ApplyRemote(*st)
		}
	}
}

// ApplyRemote installs a mirrored state received from another instance.
// Last-writer-wins; no events are re-emitted to avoid echo loops.
func (b *Breaker) ApplyRemote(st RetryState) {
	if st.Class == "" {
		return
	}
	b.mu.Lock()
	local := b.state(st.Class)
	*local = st
	b.mu.Unlock()
}

func (b *Breaker) publish(ev BreakerEvent, st RetryState) {
	if b.mirror != nil {
		b.mirror.Publish(context.Background(), st)
	}
	if b.pubSub == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubSub.Publish(BreakerTopic, msg); err != nil {
		b.logger.Warn("Breaker", "Failed to publish breaker event", map[string]interface{}{"error": err.Error()})
	}
}

// Events exposes breaker transitions as a typed subscription. The channel
// closes when ctx is done.
func (b *Breaker) Events(ctx context.Context) (<-chan BreakerEvent, error) {
	if b.pubSub == nil {
		ch := make(chan BreakerEvent)
		close(ch)
		return ch, nil
	}
	messages, err := b.pubSub.Subscribe(ctx, BreakerTopic)
	if err != nil {
		return nil, err
	}
	out := make(chan BreakerEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev BreakerEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
