package fingerprint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var (
	dublin  = [2]float64{53.3498, -6.2603}
	paris   = [2]float64{48.8566, 2.3522}
	newYork = [2]float64{40.7128, -74.0060}
	galway  = [2]float64{53.2707, -9.0568}
)

func laptop(at time.Time, loc [2]float64) Snapshot {
	return Snapshot{
		UserAgent:           "Mozilla/5.0 (Macintosh) Safari/17",
		Platform:            "MacIntel",
		Language:            "en-IE",
		Timezone:            "Europe/Dublin",
		ScreenResolution:    "2560x1600",
		ColorDepth:          30,
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		TouchSupport:        ptr(false),
		IP:                  "81.17.240.10",
		Latitude:            ptr(loc[0]),
		Longitude:           ptr(loc[1]),
		CapturedAt:          at,
	}
}

func TestSimilarity(t *testing.T) {
	base := laptop(time.Time{}, dublin)
	assert.Equal(t, 1.0, Similarity(base, base))
	assert.Equal(t, 1.0, Similarity(Snapshot{}, base), "nothing comparable")

	other := base
	other.UserAgent = "Chrome/126"
	assert.InDelta(t, 0.75, Similarity(base, other), 1e-9)

	// Attributes only one side reports are ignored.
	partial := Snapshot{UserAgent: base.UserAgent, Language: "fr-FR"}
	assert.InDelta(t, 0.25/0.35, Similarity(base, partial), 1e-9)
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 463.3, HaversineKm(53.3498, -6.2603, 51.5074, -0.1278), 0.5)
	assert.InDelta(t, 0, HaversineKm(dublin[0], dublin[1], dublin[0], dublin[1]), 1e-9)
}

func TestAssessLevels(t *testing.T) {
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		current func() Snapshot
		score   int
		level   Level
		action  Action
	}{
		{
			name:    "same device same place",
			current: func() Snapshot { return laptop(t0.Add(time.Hour), dublin) },
			score:   0, level: LevelLow, action: ActionAllow,
		},
		{
			name: "new browser nearby",
			current: func() Snapshot {
				s := laptop(t0.Add(3*time.Hour), galway)
				s.UserAgent = "Chrome/126"
				return s
			},
			score: 30, level: LevelMedium, action: ActionAllowAudit,
		},
		{
			name: "same device in paris with new ip",
			current: func() Snapshot {
				s := laptop(t0.Add(3*time.Hour), paris)
				s.IP = "90.12.1.1"
				return s
			},
			score: 40, level: LevelMedium, action: ActionAllowAudit,
		},
		{
			name: "different browser and os in paris",
			current: func() Snapshot {
				s := laptop(t0.Add(3*time.Hour), paris)
				s.UserAgent = "Chrome/126"
				s.Platform = "Win32"
				s.IP = "90.12.1.1"
				return s
			},
			score: 64, level: LevelHigh, action: ActionStepUp,
		},
		{
			name: "new device in new york an hour later",
			current: func() Snapshot {
				s := laptop(t0.Add(time.Hour), newYork)
				s.UserAgent = "Chrome/126"
				s.Platform = "Win32"
				s.ScreenResolution = "1920x1080"
				s.Timezone = "America/New_York"
				s.IP = "72.229.28.185"
				return s
			},
			score: 100, level: LevelCritical, action: ActionDeny,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Assess(laptop(t0, dublin), tc.current())
			assert.Equal(t, tc.score, got.Score, "reasons: %v", got.Reasons)
			assert.Equal(t, tc.level, got.Level)
			assert.Equal(t, tc.action, got.Action)
		})
	}
}

func TestAssessImpossibleTravel(t *testing.T) {
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	fast := Assess(laptop(t0, dublin), laptop(t0.Add(time.Hour), newYork))
	assert.True(t, fast.ImpossibleTravel)
	assert.Equal(t, 60, fast.Score)

	slow := Assess(laptop(t0, dublin), laptop(t0.Add(12*time.Hour), newYork))
	assert.False(t, slow.ImpossibleTravel)
	assert.Equal(t, 40, slow.Score)
	require.NotNil(t, slow.DistanceKm)
	assert.InDelta(t, 5114.9, *slow.DistanceKm, 1)
}

func TestAssessWithoutLocation(t *testing.T) {
	base := laptop(time.Time{}, dublin)
	base.Latitude, base.Longitude = nil, nil
	got := Assess(base, laptop(time.Time{}, newYork))
	assert.Nil(t, got.DistanceKm)
	assert.Equal(t, 0, got.Score)
}

func newRedisService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(NewRedisBaselines(client)), mr
}

func TestServiceEstablishesAndRefreshesBaseline(t *testing.T) {
	ctx := context.Background()
	svc, mr := newRedisService(t)
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	first, err := svc.Evaluate(ctx, "user-1", laptop(t0, dublin))
	require.NoError(t, err)
	assert.True(t, first.BaselineCreated)
	assert.Equal(t, LevelLow, first.Level)
	assert.True(t, mr.Exists("fingerprint:user-1"))
	assert.Equal(t, BaselineTTL, mr.TTL("fingerprint:user-1"))

	// A LOW result from Galway moves the baseline there.
	moved := laptop(t0.Add(5*time.Hour), galway)
	low, err := svc.Evaluate(ctx, "user-1", moved)
	require.NoError(t, err)
	assert.Equal(t, LevelLow, low.Level)

	stored, ok, err := svc.baselines.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, galway[0], *stored.Latitude)
}

func TestServiceKeepsBaselineOnRiskyResult(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRedisService(t)
	t0 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := svc.Evaluate(ctx, "user-1", laptop(t0, dublin))
	require.NoError(t, err)

	risky := laptop(t0.Add(time.Hour), newYork)
	risky.UserAgent = "curl/8"
	got, err := svc.Evaluate(ctx, "user-1", risky)
	require.NoError(t, err)
	assert.NotEqual(t, LevelLow, got.Level)

	stored, _, err := svc.baselines.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, dublin[0], *stored.Latitude)

	require.NoError(t, svc.Reset(ctx, "user-1"))
	_, ok, err := svc.baselines.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBaselines(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryBaselines())
	got, err := svc.Evaluate(ctx, "u", Snapshot{UserAgent: "x"})
	require.NoError(t, err)
	assert.True(t, got.BaselineCreated)

	got, err = svc.Evaluate(ctx, "u", Snapshot{UserAgent: "y"})
	require.NoError(t, err)
	assert.Equal(t, 60, got.Score)
	assert.Equal(t, LevelHigh, got.Level)
}
