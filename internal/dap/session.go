package dap

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/interp"
	"github.com/basiclang/basic-dap/pkg/types"
)

// eventEmitter is the session's channel back to the client. The server
// implements it over the transport.
type eventEmitter interface {
	emitStopped(reason types.StopReason, description string, line int)
	emitOutput(category, text string)
	emitExited(exitCode int)
	emitTerminated()
}

// Session is the run-state machine for one launched program. A single
// worker goroutine executes lines; it parks on a condition variable
// while paused and is woken by continue, step, and terminate. Request
// handlers never execute program lines themselves, so dispatch stays
// responsive while the program runs.
type Session struct {
	ID      string
	prog    *interp.Session
	bps     *breakpointStore
	emit    eventEmitter
	verbose bool

	mu         sync.Mutex
	cond       *sync.Cond
	state      types.RunState
	stepMode   bool
	pauseReq   bool
	skipBp     bool
	sourcePath string
	workerDone chan struct{}
}

// NewSession creates an idle session over a program store. Lifecycle
// logging is gated by verbose.
func NewSession(prog *interp.Session, bps *breakpointStore, emit eventEmitter, verbose bool) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		prog:    prog,
		bps:     bps,
		emit:    emit,
		verbose: verbose,
		state:   types.RunStateIdle,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State returns the current run state.
func (s *Session) State() types.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SourcePath returns the path of the launched program.
func (s *Session) SourcePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourcePath
}

// Launch starts execution paused at the first line. The program must
// already be loaded. A previous worker, if any, is stopped first.
func (s *Session) Launch(sourcePath string) error {
	if !s.prog.Loaded() {
		return errors.NoProgram()
	}
	s.stopWorker()
	s.prog.Reset()

	s.mu.Lock()
	s.sourcePath = sourcePath
	s.state = types.RunStatePaused
	s.stepMode = false
	s.pauseReq = false
	s.skipBp = false
	s.workerDone = make(chan struct{})
	done := s.workerDone
	s.mu.Unlock()

	go s.run(done)
	if s.verbose {
		log.Printf("session %s: launched %s (%d lines)", s.ID, sourcePath, s.prog.LineCount())
	}
	return nil
}

// Restart rewinds the same program back to the entry pause, clearing
// variables and user functions.
func (s *Session) Restart() error {
	s.mu.Lock()
	path := s.sourcePath
	s.mu.Unlock()
	if !s.prog.Loaded() {
		return errors.NoProgram()
	}
	return s.Launch(path)
}

// Continue resumes free execution until the next breakpoint or program
// end. Legal only while paused.
func (s *Session) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.RunStatePaused {
		return errors.IllegalTransition("continue", string(s.state))
	}
	s.stepMode = false
	s.skipBp = true
	s.state = types.RunStateRunning
	s.cond.Broadcast()
	return nil
}

// Step executes exactly one line and pauses again. Legal only while
// paused.
func (s *Session) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.RunStatePaused {
		return errors.IllegalTransition("step", string(s.state))
	}
	s.stepMode = true
	s.skipBp = true
	s.state = types.RunStateRunning
	s.cond.Broadcast()
	return nil
}

// Pause asks a running worker to stop before its next line; the worker
// emits the stopped event when it parks. Pausing an already paused
// session succeeds without effect, reported so the caller can emit the
// stopped event itself.
func (s *Session) Pause() (alreadyPaused bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case types.RunStateRunning:
		s.pauseReq = true
		return false, nil
	case types.RunStatePaused:
		return true, nil
	default:
		return false, errors.IllegalTransition("pause", string(s.state))
	}
}

// Terminate stops the worker and moves the session to terminated. The
// program stays loaded so a restart can bring it back.
func (s *Session) Terminate() {
	s.stopWorker()
}

// CurrentLine returns the 1-based line the program is stopped at or
// about to execute.
func (s *Session) CurrentLine() int {
	return s.prog.CurrentLine()
}

func (s *Session) stopWorker() {
	s.mu.Lock()
	done := s.workerDone
	if s.state != types.RunStateTerminated {
		s.state = types.RunStateTerminated
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run is the worker loop. It holds the session mutex only around state
// inspection; line execution happens unlocked so pause, evaluate, and
// variable requests stay live while the program runs.
func (s *Session) run(done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		for s.state == types.RunStatePaused {
			s.cond.Wait()
		}
		if s.state == types.RunStateTerminated {
			s.mu.Unlock()
			return
		}

		if s.prog.AtEnd() {
			s.state = types.RunStateTerminated
			s.mu.Unlock()
			if s.verbose {
				log.Printf("session %s: program finished", s.ID)
			}
			s.emit.emitExited(0)
			s.emit.emitTerminated()
			return
		}

		line := s.prog.CurrentLine()

		if s.pauseReq {
			s.pauseReq = false
			s.stepMode = false
			s.state = types.RunStatePaused
			s.mu.Unlock()
			s.emit.emitStopped(types.StopReasonPause, "", line)
			continue
		}

		if !s.stepMode {
			// Breakpoint checks happen before the line executes. The
			// line a resume started from is exempt so continue does
			// not stop where it just stopped.
			if s.skipBp {
				s.skipBp = false
			} else if s.bps.Has(s.sourcePath, line) {
				s.state = types.RunStatePaused
				s.mu.Unlock()
				s.emit.emitStopped(types.StopReasonBreakpoint, "", line)
				continue
			}
		} else {
			s.skipBp = false
		}

		stepping := s.stepMode
		s.mu.Unlock()

		err := s.prog.ExecCurrentLine()

		s.mu.Lock()
		if err != nil {
			// A failing line reports and pauses; the session survives.
			s.stepMode = false
			terminated := s.state == types.RunStateTerminated
			if !terminated {
				s.state = types.RunStatePaused
			}
			s.mu.Unlock()
			log.Printf("session %s: line %d: %v", s.ID, line, err)
			s.emit.emitOutput("stderr", err.Error()+"\n")
			if !terminated {
				s.emit.emitStopped(types.StopReasonException, err.Error(), line)
			}
			continue
		}
		if stepping && s.state == types.RunStateRunning {
			s.stepMode = false
			s.state = types.RunStatePaused
			cur := s.prog.CurrentLine()
			s.mu.Unlock()
			s.emit.emitStopped(types.StopReasonStep, "", cur)
			continue
		}
		s.mu.Unlock()
	}
}
