package syncer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

// State is the per-content-type scheduler state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Status is the externally visible state of one content type's sync.
type Status struct {
	State     State     `json:"state"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Dispatcher receives the unread delta of a successful pass.
type Dispatcher interface {
	Dispatch(ctx context.Context, typ models.ContentType, newUnread int)
}

// ConstraintFunc gates a sync pass. All constraints must pass before a
// run starts; an unmet constraint skips the run until the next window.
type ConstraintFunc func(ctx context.Context) bool

// NetworkConstraint reports whether the network is reachable by
// dialing addr. This is the only constraint enabled by default;
// host-idle and charging gates plug in the same way where the host
// environment can answer them.
func NetworkConstraint(addr string) ConstraintFunc {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: 3 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Scheduler runs each task periodically on its own worker goroutine.
// It is an explicit value with a start/stop lifecycle; triggers travel
// over channels, and a trigger arriving while the same content type is
// already running is coalesced. Content types never block each other.
type Scheduler struct {
	interval    time.Duration
	tasks       []Task
	dispatcher  Dispatcher
	constraints []ConstraintFunc

	mu       sync.Mutex
	statuses map[models.ContentType]Status
	triggers map[models.ContentType]chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(interval time.Duration, dispatcher Dispatcher, constraints ...ConstraintFunc) *Scheduler {
	return &Scheduler{
		interval:    interval,
		dispatcher:  dispatcher,
		constraints: constraints,
		statuses:    make(map[models.ContentType]Status),
		triggers:    make(map[models.ContentType]chan struct{}),
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.statuses[task.ContentType()] = Status{State: StateIdle}
	s.triggers[task.ContentType()] = make(chan struct{}, 1)
}

// Start launches one worker per registered task. Each worker runs an
// immediate first pass, then follows the periodic ticker and any
// manual triggers.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.worker(ctx, task)
	}
	logger.Get().Info().
		Int("tasks", len(s.tasks)).
		Dur("interval", s.interval).
		Msg("Sync scheduler started")
}

// Stop cancels all workers and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Get().Info().Msg("Sync scheduler stopped")
}

// TriggerNow requests an immediate pass for one content type. If a
// pass is already running the trigger is coalesced, never stacked.
func (s *Scheduler) TriggerNow(typ models.ContentType) {
	s.mu.Lock()
	ch, ok := s.triggers[typ]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
		// A trigger is already pending; drop this one.
	}
}

// Status returns the current status for one content type.
func (s *Scheduler) Status(typ models.ContentType) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[typ]
}

// Statuses returns a copy of all per-type statuses.
func (s *Scheduler) Statuses() map[models.ContentType]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.ContentType]Status, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

func (s *Scheduler) worker(ctx context.Context, task Task) {
	defer s.wg.Done()

	s.mu.Lock()
	trigger := s.triggers[task.ContentType()]
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		case <-trigger:
			s.runOnce(ctx, task)
		}
	}
}

// runOnce drives the Idle → Running → {Success, Failed} → Idle state
// machine for one pass. Workers are per content type, so passes for
// the same type are strictly sequential.
func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	typ := task.ContentType()
	log := logger.Get()

	for _, constraint := range s.constraints {
		if !constraint(ctx) {
			log.Debug().
				Str("content_type", string(typ)).
				Msg("Sync constraints not met, skipping window")
			return
		}
	}

	s.setStatus(typ, func(st *Status) { st.State = StateRunning })

	newUnread, err := task.Run(ctx)
	now := time.Now()

	if err != nil {
		// The next periodic window is the retry; the commit is
		// atomic, so the store holds the previous good state.
		s.setStatus(typ, func(st *Status) {
			st.State = StateFailed
			st.LastRun = now
			st.LastError = err.Error()
		})
		log.Warn().
			Err(err).
			Str("content_type", string(typ)).
			Msg("Sync pass failed, deferring to next window")
		return
	}

	s.setStatus(typ, func(st *Status) {
		st.State = StateSuccess
		st.LastRun = now
		st.LastError = ""
	})

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, typ, newUnread)
	}
}

func (s *Scheduler) setStatus(typ models.ContentType, update func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[typ]
	update(&st)
	s.statuses[typ] = st
}
