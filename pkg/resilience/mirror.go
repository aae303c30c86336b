package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"counseling-portal-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	mirrorKeyPrefix = "portal:breaker:"
	mirrorChannel   = "portal:breaker_events"
	mirrorTTL       = 30 * time.Minute
)

// Mirror replicates per-class RetryState into redis so independent instances of
// the same logical feature converge on one breaker status instead of
// re-deriving it. Everything here is best-effort: a dead redis degrades the
// breaker to purely local state and must never fail a caller.
type Mirror struct {
	rdb      *redis.Client
	instance string
	logger   logger.ILogger
}

func NewMirror(rdb *redis.Client, log logger.ILogger) *Mirror {
	if rdb == nil {
		return nil
	}
	return &Mirror{
		rdb:      rdb,
		instance: uuid.New().String(),
		logger:   log,
	}
}

type mirrorPayload struct {
	Origin string     `json:"origin"`
	State  RetryState `json:"state"`
}

func parseMirrorPayload(raw []byte) (*mirrorPayload, error) {
	var payload mirrorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return &payload, nil
}

// Publish writes the committed state for a class and broadcasts a change
// notification. Last-writer-wins whole-record replace.
func (m *Mirror) Publish(ctx context.Context, st RetryState) {
	if m == nil || st.Class == "" {
		return
	}
	payload, err := json.Marshal(mirrorPayload{Origin: m.instance, State: st})
	if err != nil {
		return
	}
	key := mirrorKeyPrefix + st.Class
	if err := m.rdb.Set(ctx, key, payload, mirrorTTL).Err(); err != nil {
		m.logger.Warn("Mirror", "Failed to write breaker state", map[string]interface{}{"class": st.Class, "error": err.Error()})
		return
	}
	if err := m.rdb.Publish(ctx, mirrorChannel, payload).Err(); err != nil {
		m.logger.Warn("Mirror", "Failed to broadcast breaker state", map[string]interface{}{"class": st.Class, "error": err.Error()})
	}
}

// Load reads the shared state for a class, if any.
func (m *Mirror) Load(ctx context.Context, class string) (*RetryState, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := m.rdb.Get(ctx, mirrorKeyPrefix+class).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	payload, err := parseMirrorPayload(raw)
	if err != nil {
		return nil, err
	}
	return &payload.State, nil
}

// Watch subscribes to change notifications and applies remote states through
// the callback. Messages published by this instance are skipped. Blocks until
// ctx is done; run it in its own goroutine.
func (m *Mirror) Watch(ctx context.Context, apply func(RetryState)) {
	if m == nil {
		return
	}
	pubsub := m.rdb.Subscribe(ctx, mirrorChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, err := parseMirrorPayload([]byte(msg.Payload))
			if err != nil {
				m.logger.Warn("Mirror", "Unparsable breaker broadcast", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == m.instance {
				continue
			}
			apply(payload.State)
		}
	}
}
