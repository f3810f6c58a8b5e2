package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/castwave/client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	mu       sync.Mutex
	prefixes []string
	evicts   int
}

func (f *fakeInvalidator) InvalidatePrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prefixes = append(f.prefixes, prefix)

	return 1
}

func (f *fakeInvalidator) Evict() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evicts++

	return 0
}

func (f *fakeInvalidator) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.prefixes...), f.evicts
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
		anyErr  bool
	}{
		{name: "disabled skips checks", cfg: Config{Schedules: []Schedule{{Spec: "bogus"}}}},
		{
			name: "valid",
			cfg: Config{Enabled: true, Tick: time.Second, EvictSchedule: "@every 5m", Schedules: []Schedule{
				{Name: "queue", Prefix: "http://api/queue", Spec: "@every 30s"},
				{Name: "recs", Prefix: "http://api/recommendations", Spec: "0 * * * *"},
			}},
		},
		{name: "missing name", cfg: Config{Enabled: true, Tick: time.Second, Schedules: []Schedule{{Spec: "@every 1m"}}}, wantErr: ErrScheduleNameRequired},
		{
			name: "duplicate name",
			cfg: Config{Enabled: true, Tick: time.Second, Schedules: []Schedule{
				{Name: "a", Spec: "@every 1m"},
				{Name: "a", Spec: "@every 2m"},
			}},
			wantErr: ErrDuplicateSchedule,
		},
		{name: "bad spec", cfg: Config{Enabled: true, Tick: time.Second, Schedules: []Schedule{{Name: "a", Spec: "every minute"}}}, anyErr: true},
		{name: "bad evict spec", cfg: Config{Enabled: true, Tick: time.Second, EvictSchedule: "@sometimes"}, anyErr: true},
		{name: "zero tick", cfg: Config{Enabled: true}, wantErr: ErrInvalidTick},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_RunDue(t *testing.T) {
	target := &fakeInvalidator{}
	s, err := NewScheduler(testutil.NewLogger(), &Config{
		Enabled:       true,
		EvictSchedule: "@every 5m",
		Schedules: []Schedule{
			{Name: "queue", Prefix: "http://api/queue", Spec: "@every 30s"},
		},
	}, target)
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.plan(start)

	assert.Equal(t, 0, s.runDue(start.Add(10*time.Second)))
	assert.Equal(t, 1, s.runDue(start.Add(30*time.Second)))
	assert.Equal(t, 0, s.runDue(start.Add(45*time.Second)))
	assert.Equal(t, 1, s.runDue(start.Add(61*time.Second)))
	assert.Equal(t, 2, s.runDue(start.Add(5*time.Minute)))

	prefixes, evicts := target.snapshot()
	assert.Equal(t, []string{"http://api/queue", "http://api/queue", "http://api/queue"}, prefixes)
	assert.Equal(t, 1, evicts)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(testutil.NewLogger(), &Config{
		Schedules: []Schedule{{Name: "bad", Spec: "nope"}},
	}, &fakeInvalidator{})
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	target := &fakeInvalidator{}
	s, err := NewScheduler(testutil.NewLogger(), &Config{
		Tick:      10 * time.Millisecond,
		Schedules: []Schedule{{Name: "all", Spec: "@every 1s"}},
	}, target)
	require.NoError(t, err)

	clock := time.Now()
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(500 * time.Millisecond)
		return clock
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		prefixes, _ := target.snapshot()
		return len(prefixes) >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.NoError(t, <-errCh)

	prefixes, _ := target.snapshot()
	assert.Equal(t, "", prefixes[0])
}

func TestScheduler_StartHonoursContext(t *testing.T) {
	s, err := NewScheduler(testutil.NewLogger(), &Config{Tick: time.Hour}, &fakeInvalidator{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}
