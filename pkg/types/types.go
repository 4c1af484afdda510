// Package types defines shared data types used across the BASIC debug
// engine.
//
// This package provides type definitions for:
//   - RunState: debug session execution states and their legal transitions
//   - StopReason: reasons reported in stopped events
//   - LaunchArguments: decoded launch/attach request bodies
//   - LoadSourceArguments: the custom loadSource request body
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

// RunState represents the execution state of a debug session.
type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateRunning    RunState = "running"
	RunStatePaused     RunState = "paused"
	RunStateTerminated RunState = "terminated"
)

// CanTransitionTo reports whether moving from s to next is a legal
// state-machine transition. Launch moves idle to running and then
// immediately to paused for the entry stop; restart moves terminated
// back to running.
func (s RunState) CanTransitionTo(next RunState) bool {
	switch s {
	case RunStateIdle:
		return next == RunStateRunning || next == RunStateTerminated
	case RunStateRunning:
		return next == RunStatePaused || next == RunStateTerminated
	case RunStatePaused:
		return next == RunStateRunning || next == RunStateTerminated
	case RunStateTerminated:
		return next == RunStateRunning
	default:
		return false
	}
}

// StopReason is the reason carried by a stopped event.
type StopReason string

const (
	StopReasonEntry      StopReason = "entry"
	StopReasonStep       StopReason = "step"
	StopReasonBreakpoint StopReason = "breakpoint"
	StopReasonPause      StopReason = "pause"
	StopReasonException  StopReason = "exception"
)

// LaunchArguments represents the body of a launch or attach request.
// Program names a file on disk; Source/Content carry inline program
// text. Inline text takes priority when both are present.
type LaunchArguments struct {
	Program     string `json:"program,omitempty"`
	Source      string `json:"source,omitempty"`
	Content     string `json:"content,omitempty"`
	Name        string `json:"name,omitempty"`
	StopOnEntry bool   `json:"stopOnEntry,omitempty"`
	NoDebug     bool   `json:"noDebug,omitempty"`
}

// LoadSourceArguments represents the body of the custom loadSource
// request, which replaces the loaded program text without launching.
type LoadSourceArguments struct {
	Source  string `json:"source,omitempty"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content"`
}

// VariableInfo is a name/value/type triple snapshotted from the
// variable store for variables responses.
type VariableInfo struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}
