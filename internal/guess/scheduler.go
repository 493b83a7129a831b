package guess

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

const (
	defaultResolveTimeout = 30 * time.Second
	minRearmWait          = 250 * time.Millisecond
)

// Resolver is what a fired timer calls.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Resolution, error)
}

type armedTimer struct {
	timer    *time.Timer
	placedAt time.Time
}

// Scheduler fires one best-effort resolve per user, delay after placement.
// Timers live in process memory only; a lost timer is recovered by the
// reconciler, never by this type.
type Scheduler struct {
	resolver Resolver
	delay    time.Duration
	timeout  time.Duration
	clock    Clock
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	timers *xsync.MapOf[string, *armedTimer]

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewScheduler(ctx context.Context, resolver Resolver, delay, timeout time.Duration, clock Clock, logger *zap.Logger) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	if delay <= 0 {
		delay = defaultSettlementDelay
	}
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		resolver: resolver,
		delay:    delay,
		timeout:  timeout,
		clock:    clock,
		logger:   logger,
		ctx:      runCtx,
		cancel:   cancel,
		timers:   xsync.NewMapOf[string, *armedTimer](),
	}
}

// Arm schedules a resolve for userID at placedAt+delay, replacing any timer
// already armed for that user.
func (s *Scheduler) Arm(userID string, placedAt time.Time) {
	if s == nil {
		return
	}
	wait := placedAt.Add(s.delay).Sub(s.clock.Now())
	s.armAfter(userID, placedAt, wait)
}

// Armed is the number of timers waiting to fire.
func (s *Scheduler) Armed() int {
	if s == nil {
		return 0
	}
	return s.timers.Size()
}

// Stop cancels pending timers and waits for in-flight resolves to return.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.timers.Range(func(userID string, t *armedTimer) bool {
		t.timer.Stop()
		s.timers.Delete(userID)
		return true
	})
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) armAfter(userID string, placedAt time.Time, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if wait < 0 {
		wait = 0
	}
	entry := &armedTimer{placedAt: placedAt}
	entry.timer = time.AfterFunc(wait, func() { s.fire(userID, entry) })
	if prev, loaded := s.timers.LoadAndStore(userID, entry); loaded && prev != nil {
		prev.timer.Stop()
	}
}

func (s *Scheduler) fire(userID string, entry *armedTimer) {
	s.timers.Compute(userID, func(cur *armedTimer, loaded bool) (*armedTimer, bool) {
		if loaded && cur == entry {
			return nil, true
		}
		return cur, !loaded
	})

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	res, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		s.logger.Warn("scheduled resolve failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	switch res.Status {
	case StatusNotDue:
		wait := res.PlacedAt.Add(s.delay).Sub(s.clock.Now())
		if wait < minRearmWait {
			wait = minRearmWait
		}
		s.armAfter(userID, res.PlacedAt, wait)
	case StatusResolved:
		s.logger.Debug("scheduled resolve settled guess",
			zap.String("user_id", userID),
			zap.String("outcome", string(res.Outcome)),
			zap.Int64("score", res.Score),
		)
	}
}
