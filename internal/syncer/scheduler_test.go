package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkutlay/feedsync/internal/models"
)

type fakeTask struct {
	typ     models.ContentType
	delta   int
	err     error
	mu      sync.Mutex
	runs    int
	block   chan struct{} // when set, Run waits until closed
	started chan struct{} // signaled at the start of each Run
}

func (f *fakeTask) ContentType() models.ContentType { return f.typ }

func (f *fakeTask) Run(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	return f.delta, f.err
}

func (f *fakeTask) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

type dispatchCall struct {
	typ   models.ContentType
	delta int
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, typ models.ContentType, newUnread int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{typ: typ, delta: newUnread})
}

func (d *recordingDispatcher) all() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerStateMachine(t *testing.T) {
	task := &fakeTask{typ: models.TypeAnnouncement, delta: 3, block: make(chan struct{}), started: make(chan struct{}, 1)}
	disp := &recordingDispatcher{}
	s := NewScheduler(time.Hour, disp)
	s.Register(task)

	s.Start(context.Background())
	defer s.Stop()

	<-task.started
	if st := s.Status(models.TypeAnnouncement); st.State != StateRunning {
		t.Errorf("expected running, got %s", st.State)
	}

	close(task.block)
	waitFor(t, func() bool { return s.Status(models.TypeAnnouncement).State == StateSuccess })

	calls := disp.all()
	if len(calls) != 1 || calls[0].delta != 3 || calls[0].typ != models.TypeAnnouncement {
		t.Errorf("unexpected dispatches: %+v", calls)
	}
}

func TestSchedulerFailureIsolation(t *testing.T) {
	failing := &fakeTask{typ: models.TypeAnnouncement, err: errors.New("boom")}
	healthy := &fakeTask{typ: models.TypeBlogPost, delta: 1}
	disp := &recordingDispatcher{}
	s := NewScheduler(time.Hour, disp)
	s.Register(failing)
	s.Register(healthy)

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool {
		return s.Status(models.TypeAnnouncement).State == StateFailed &&
			s.Status(models.TypeBlogPost).State == StateSuccess
	})

	if st := s.Status(models.TypeAnnouncement); st.LastError == "" {
		t.Error("expected last error to be recorded")
	}

	// Only the healthy type dispatched; one type's failure never
	// blocks the other's sync.
	calls := disp.all()
	if len(calls) != 1 || calls[0].typ != models.TypeBlogPost {
		t.Errorf("unexpected dispatches: %+v", calls)
	}
}

func TestSchedulerCoalescesTriggers(t *testing.T) {
	task := &fakeTask{typ: models.TypeAnnouncement, block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewScheduler(time.Hour, nil)
	s.Register(task)

	s.Start(context.Background())
	defer s.Stop()

	<-task.started

	// Triggers while running collapse to at most one queued pass
	for i := 0; i < 5; i++ {
		s.TriggerNow(models.TypeAnnouncement)
	}
	close(task.block)

	waitFor(t, func() bool { return task.runCount() == 2 })
	time.Sleep(50 * time.Millisecond)
	if n := task.runCount(); n != 2 {
		t.Errorf("expected 2 runs (initial + one coalesced), got %d", n)
	}
}

func TestSchedulerConstraintSkipsRun(t *testing.T) {
	task := &fakeTask{typ: models.TypeAnnouncement}
	blocked := func(ctx context.Context) bool { return false }
	s := NewScheduler(time.Hour, nil, blocked)
	s.Register(task)

	s.Start(context.Background())
	defer s.Stop()

	s.TriggerNow(models.TypeAnnouncement)
	time.Sleep(50 * time.Millisecond)

	if task.runCount() != 0 {
		t.Errorf("expected no runs under unmet constraints, got %d", task.runCount())
	}
	if st := s.Status(models.TypeAnnouncement); st.State != StateIdle {
		t.Errorf("expected idle, got %s", st.State)
	}
}

func TestSchedulerTriggerUnknownType(t *testing.T) {
	s := NewScheduler(time.Hour, nil)
	// Must not panic
	s.TriggerNow(models.TypeBlogPost)
}
