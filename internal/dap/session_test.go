package dap

import (
	"testing"
	"time"

	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/interp"
	"github.com/basiclang/basic-dap/pkg/types"
)

type recordedEvent struct {
	kind     string
	reason   types.StopReason
	category string
	text     string
	exitCode int
}

// recordingEmitter captures session events and doubles as the program
// output sink, the same shape the server has.
type recordingEmitter struct {
	ch chan recordedEvent
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{ch: make(chan recordedEvent, 64)}
}

func (r *recordingEmitter) emitStopped(reason types.StopReason, description string, line int) {
	r.ch <- recordedEvent{kind: "stopped", reason: reason, text: description}
}

func (r *recordingEmitter) emitOutput(category, text string) {
	r.ch <- recordedEvent{kind: "output", category: category, text: text}
}

func (r *recordingEmitter) emitExited(code int) {
	r.ch <- recordedEvent{kind: "exited", exitCode: code}
}

func (r *recordingEmitter) emitTerminated() {
	r.ch <- recordedEvent{kind: "terminated"}
}

func (r *recordingEmitter) Print(text string) {
	r.emitOutput("stdout", text)
}

func (r *recordingEmitter) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return recordedEvent{}
	}
}

func (r *recordingEmitter) expectStopped(t *testing.T, reason types.StopReason) {
	t.Helper()
	ev := r.next(t)
	if ev.kind != "stopped" || ev.reason != reason {
		t.Fatalf("expected stopped(%s), got %+v", reason, ev)
	}
}

func newDebugSession(t *testing.T, program string) (*Session, *interp.Session, *recordingEmitter) {
	t.Helper()
	emit := newRecordingEmitter()
	prog := interp.NewSession(emit, interp.NoInput{})
	if err := prog.Load(program); err != nil {
		t.Fatalf("load: %v", err)
	}
	sess := NewSession(prog, newBreakpointStore(), emit, false)
	t.Cleanup(sess.Terminate)
	return sess, prog, emit
}

const countProgram = "LET i = 0\nLET i = i + 1\nLET i = i + 2\nPRINT i\n"

func TestDebugSession_LaunchPausesAtEntry(t *testing.T) {
	sess, prog, _ := newDebugSession(t, countProgram)
	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if got := sess.State(); got != types.RunStatePaused {
		t.Errorf("expected paused, got %s", got)
	}
	if line := prog.CurrentLine(); line != 1 {
		t.Errorf("expected entry at line 1, got %d", line)
	}
}

func TestDebugSession_StepExecutesOneLine(t *testing.T) {
	sess, prog, emit := newDebugSession(t, countProgram)
	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := sess.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	emit.expectStopped(t, types.StopReasonStep)
	if line := prog.CurrentLine(); line != 2 {
		t.Errorf("expected line 2 after one step, got %d", line)
	}
	if v, ok := prog.Var("i"); !ok || v.String() != "0" {
		t.Errorf("expected i = 0 after step, got %v", v)
	}
}

func TestDebugSession_ContinueRunsToEnd(t *testing.T) {
	sess, _, emit := newDebugSession(t, countProgram)
	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := sess.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}

	out := emit.next(t)
	if out.kind != "output" || out.category != "stdout" || out.text != "3\n" {
		t.Fatalf("expected stdout \"3\\n\", got %+v", out)
	}
	exited := emit.next(t)
	if exited.kind != "exited" || exited.exitCode != 0 {
		t.Fatalf("expected exited(0), got %+v", exited)
	}
	if ev := emit.next(t); ev.kind != "terminated" {
		t.Fatalf("expected terminated, got %+v", ev)
	}
	if got := sess.State(); got != types.RunStateTerminated {
		t.Errorf("expected terminated state, got %s", got)
	}
}

func TestDebugSession_BreakpointStopsBeforeLine(t *testing.T) {
	emit := newRecordingEmitter()
	prog := interp.NewSession(emit, interp.NoInput{})
	if err := prog.Load(countProgram); err != nil {
		t.Fatalf("load: %v", err)
	}
	bps := newBreakpointStore()
	bps.Replace("count.bas", []int{3})
	sess := NewSession(prog, bps, emit, false)
	t.Cleanup(sess.Terminate)

	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := sess.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}
	emit.expectStopped(t, types.StopReasonBreakpoint)
	if line := prog.CurrentLine(); line != 3 {
		t.Errorf("expected stop at line 3, got %d", line)
	}
	if v, ok := prog.Var("i"); !ok || v.String() != "1" {
		t.Errorf("line 3 should not have run yet, i = %v", v)
	}

	// Resuming from the stop must not re-trigger the same breakpoint.
	if err := sess.Continue(); err != nil {
		t.Fatalf("second continue: %v", err)
	}
	if ev := emit.next(t); ev.kind != "output" || ev.text != "3\n" {
		t.Fatalf("expected program output, got %+v", ev)
	}
}

func TestDebugSession_RuntimeErrorPausesWithException(t *testing.T) {
	sess, _, emit := newDebugSession(t, "LET a = 1\nLET b = a / 0\nPRINT a\n")
	if err := sess.Launch("bad.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := sess.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}

	out := emit.next(t)
	if out.kind != "output" || out.category != "stderr" {
		t.Fatalf("expected stderr output, got %+v", out)
	}
	emit.expectStopped(t, types.StopReasonException)
	if got := sess.State(); got != types.RunStatePaused {
		t.Errorf("expected paused after error, got %s", got)
	}
	// The failing line is skipped; execution can go on.
	if err := sess.Continue(); err != nil {
		t.Fatalf("continue past error: %v", err)
	}
	if ev := emit.next(t); ev.kind != "output" || ev.text != "1\n" {
		t.Fatalf("expected PRINT after the bad line, got %+v", ev)
	}
}

func TestDebugSession_RestartClearsState(t *testing.T) {
	sess, prog, emit := newDebugSession(t, countProgram)
	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := sess.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	emit.expectStopped(t, types.StopReasonStep)

	if err := sess.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := sess.State(); got != types.RunStatePaused {
		t.Errorf("expected paused after restart, got %s", got)
	}
	if line := prog.CurrentLine(); line != 1 {
		t.Errorf("expected line 1 after restart, got %d", line)
	}
	if _, ok := prog.Var("i"); ok {
		t.Error("restart should clear variables")
	}
}

func TestDebugSession_IllegalTransitions(t *testing.T) {
	sess, _, _ := newDebugSession(t, countProgram)

	if err := sess.Continue(); errors.CodeOf(err) != errors.CodeIllegalTransition {
		t.Errorf("continue before launch: expected illegal transition, got %v", err)
	}
	if err := sess.Step(); errors.CodeOf(err) != errors.CodeIllegalTransition {
		t.Errorf("step before launch: expected illegal transition, got %v", err)
	}
	if _, err := sess.Pause(); errors.CodeOf(err) != errors.CodeIllegalTransition {
		t.Errorf("pause before launch: expected illegal transition, got %v", err)
	}

	if err := sess.Launch("count.bas"); err != nil {
		t.Fatalf("launch: %v", err)
	}
	alreadyPaused, err := sess.Pause()
	if err != nil {
		t.Errorf("pausing a paused session should be a no-op, got %v", err)
	}
	if !alreadyPaused {
		t.Error("pausing a paused session should report it was already paused")
	}
}

func TestDebugSession_LaunchWithoutProgram(t *testing.T) {
	emit := newRecordingEmitter()
	prog := interp.NewSession(emit, interp.NoInput{})
	sess := NewSession(prog, newBreakpointStore(), emit, false)
	if err := sess.Launch("empty.bas"); errors.CodeOf(err) != errors.CodeNoProgram {
		t.Errorf("expected no-program error, got %v", err)
	}
}
