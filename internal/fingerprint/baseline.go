package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BaselineTTL is how long an unused baseline survives.
const BaselineTTL = 90 * 24 * time.Hour

// Baselines stores the last trusted snapshot per user.
type Baselines interface {
	Get(ctx context.Context, userID string) (Snapshot, bool, error)
	Put(ctx context.Context, userID string, snapshot Snapshot) error
	Delete(ctx context.Context, userID string) error
}

type RedisBaselines struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBaselines(client *redis.Client) *RedisBaselines {
	return &RedisBaselines{client: client, ttl: BaselineTTL}
}

func baselineKey(userID string) string {
	return "fingerprint:" + userID
}

func (b *RedisBaselines) Get(ctx context.Context, userID string) (Snapshot, bool, error) {
	raw, err := b.client.Get(ctx, baselineKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load fingerprint baseline: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode fingerprint baseline: %w", err)
	}
	return snap, true, nil
}

func (b *RedisBaselines) Put(ctx context.Context, userID string, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode fingerprint baseline: %w", err)
	}
	if err := b.client.Set(ctx, baselineKey(userID), raw, b.ttl).Err(); err != nil {
		return fmt.Errorf("save fingerprint baseline: %w", err)
	}
	return nil
}

func (b *RedisBaselines) Delete(ctx context.Context, userID string) error {
	if err := b.client.Del(ctx, baselineKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete fingerprint baseline: %w", err)
	}
	return nil
}

// MemoryBaselines keeps baselines in process; used when Redis is not configured.
type MemoryBaselines struct {
	mu    sync.Mutex
	items map[string]Snapshot
}

func NewMemoryBaselines() *MemoryBaselines {
	return &MemoryBaselines{items: map[string]Snapshot{}}
}

func (b *MemoryBaselines) Get(_ context.Context, userID string) (Snapshot, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.items[userID]
	return snap, ok, nil
}

func (b *MemoryBaselines) Put(_ context.Context, userID string, snapshot Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[userID] = snapshot
	return nil
}

func (b *MemoryBaselines) Delete(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, userID)
	return nil
}

// Service evaluates snapshots against stored baselines.
type Service struct {
	baselines Baselines
	now       func() time.Time
}

func NewService(baselines Baselines) *Service {
	return &Service{baselines: baselines, now: time.Now}
}

// Evaluate scores current against the user's baseline. The first snapshot
// becomes the baseline; LOW results refresh it.
func (s *Service) Evaluate(ctx context.Context, userID string, current Snapshot) (Assessment, error) {
	if current.CapturedAt.IsZero() {
		current.CapturedAt = s.now().UTC()
	}

	baseline, ok, err := s.baselines.Get(ctx, userID)
	if err != nil {
		return Assessment{}, err
	}
	if !ok {
		if err := s.baselines.Put(ctx, userID, current); err != nil {
			return Assessment{}, err
		}
		return Assessment{
			Level:           LevelLow,
			Action:          ActionAllow,
			Similarity:      1,
			Reasons:         []string{},
			BaselineCreated: true,
		}, nil
	}

	assessment := Assess(baseline, current)
	if assessment.Level == LevelLow {
		if err := s.baselines.Put(ctx, userID, current); err != nil {
			return Assessment{}, err
		}
	}
	return assessment, nil
}

// Reset forgets the user's baseline, e.g. after a password reset.
func (s *Service) Reset(ctx context.Context, userID string) error {
	return s.baselines.Delete(ctx, userID)
}
