package manager

import (
	"fmt"
	"time"

	"github.com/nmeasure/blastmesh/internal/timer"
)

const supervisorTaskID = "test-duration-supervisor"

// defaultTickInterval is the supervisor's poll period (spec.md §4.3: "wakes
// at most every 5 seconds").
const defaultTickInterval = 5 * time.Second

// Supervisor watches wall-clock elapsed time against the configured test
// duration and stops the server when the budget is exhausted (spec.md
// §4.3). It reschedules itself against the timer.Manager every tick
// interval, the same self-rescheduling pattern the teacher uses for its
// inactivity timer in internal/server/tcp_server.go.
type Supervisor struct {
	timers       *timer.Manager
	testStarted  time.Time
	testDuration time.Duration // 0 = indefinite
	tickInterval time.Duration
	onExpire     func()
}

// NewSupervisor creates a supervisor. onExpire is invoked at most once, when
// the test duration budget is exhausted.
func NewSupervisor(timers *timer.Manager, testDuration time.Duration, onExpire func()) *Supervisor {
	return &Supervisor{
		timers:       timers,
		testStarted:  time.Now(),
		testDuration: testDuration,
		tickInterval: defaultTickInterval,
		onExpire:     onExpire,
	}
}

// Start schedules the first wake-up. A zero test duration means "run
// indefinitely until signalled" (spec.md §4.3); the supervisor does nothing
// in that case.
func (s *Supervisor) Start() {
	if s.testDuration <= 0 {
		return
	}
	s.scheduleTick()
}

func (s *Supervisor) scheduleTick() {
	s.timers.Schedule(supervisorTaskID, time.Now().Add(s.tickInterval), s.tick)
}

func (s *Supervisor) tick() {
	elapsed := time.Since(s.testStarted)
	if elapsed >= s.testDuration+s.tickInterval {
		fmt.Println("test duration supervisor: budget exhausted, stopping")
		s.onExpire()
		return
	}
	s.scheduleTick()
}

// Elapsed returns wall-clock time since the test started.
func (s *Supervisor) Elapsed() time.Duration {
	return time.Since(s.testStarted)
}

// Remaining returns the time left in the test budget. A zero test duration
// is treated as an effectively unbounded remaining time.
func (s *Supervisor) Remaining() time.Duration {
	if s.testDuration <= 0 {
		return 365 * 24 * time.Hour
	}
	remaining := s.testDuration - s.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Over reports whether the test's time budget has been exhausted.
func (s *Supervisor) Over() bool {
	return s.testDuration > 0 && s.Remaining() <= 0
}
