package dap

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/basiclang/basic-dap/internal/config"
	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/interp"
	"github.com/basiclang/basic-dap/pkg/types"
)

const (
	mainThreadID     = 1
	mainFrameID      = 1
	localScopeRef    = 1
	globalScopeRef   = 2
	defaultSourceRef = "program.bas"
)

// Server drives one debug connection. It reads framed requests from
// the transport, dispatches them synchronously, and forwards program
// output and run-state changes as events. One Server serves one
// client; the caller makes a fresh one per accepted connection.
type Server struct {
	transport *Transport
	cfg       *config.Config

	mu      sync.Mutex
	sources map[string]string
	closing bool

	prog    *interp.Session
	session *Session
	bps     *breakpointStore
}

// NewServer wires a server over an established transport. Program
// INPUT statements read from in; pass an unavailable source when the
// transport owns stdin. The configuration's permission flags gate
// evaluate and setVariable.
func NewServer(t *Transport, in interp.InputSource, cfg *config.Config) *Server {
	s := &Server{
		transport: t,
		cfg:       cfg,
		sources:   make(map[string]string),
	}
	s.prog = interp.NewSession(s, in)
	s.bps = newBreakpointStore()
	s.session = NewSession(s.prog, s.bps, s, cfg.Verbose)
	return s
}

// Serve runs the read/dispatch loop until the client disconnects or
// the transport drops. The session is torn down on return.
func (s *Server) Serve() error {
	defer s.teardown()
	if s.cfg.Verbose {
		log.Printf("session %s: client connected", s.session.ID)
	}
	for {
		raw, err := s.transport.ReceiveRaw()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if s.cfg.LogWire {
			log.Printf("<- %s", raw)
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			log.Printf("session %s: dropping frame: %v", s.session.ID, err)
			continue
		}
		s.dispatch(msg)
		if s.isClosing() {
			return nil
		}
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) teardown() {
	s.session.Terminate()
	s.prog.Cleanup()
	s.bps.ClearAll()
	s.transport.Close()
	if s.cfg.Verbose {
		log.Printf("session %s: closed", s.session.ID)
	}
}

func (s *Server) dispatch(msg godap.Message) {
	switch req := msg.(type) {
	case *godap.InitializeRequest:
		s.onInitialize(req)
	case *godap.LaunchRequest:
		s.onLaunch(&req.Request, req.Arguments)
	case *godap.AttachRequest:
		s.onLaunch(&req.Request, req.Arguments)
	case *godap.ConfigurationDoneRequest:
		s.send(&godap.ConfigurationDoneResponse{Response: s.newResponse(&req.Request)})
	case *godap.SetBreakpointsRequest:
		s.onSetBreakpoints(req)
	case *godap.SetFunctionBreakpointsRequest:
		s.send(&godap.SetFunctionBreakpointsResponse{
			Response: s.newResponse(&req.Request),
			Body:     godap.SetFunctionBreakpointsResponseBody{Breakpoints: []godap.Breakpoint{}},
		})
	case *godap.SetExceptionBreakpointsRequest:
		s.send(&godap.SetExceptionBreakpointsResponse{Response: s.newResponse(&req.Request)})
	case *godap.ContinueRequest:
		s.onContinue(req)
	case *godap.NextRequest:
		s.onStep(&req.Request)
	case *godap.StepInRequest:
		s.onStep(&req.Request)
	case *godap.StepOutRequest:
		s.onStep(&req.Request)
	case *godap.PauseRequest:
		s.onPause(req)
	case *godap.StackTraceRequest:
		s.onStackTrace(req)
	case *godap.ScopesRequest:
		s.onScopes(req)
	case *godap.VariablesRequest:
		s.onVariables(req)
	case *godap.EvaluateRequest:
		s.onEvaluate(req)
	case *godap.SetVariableRequest:
		s.onSetVariable(req)
	case *godap.SourceRequest:
		s.onSource(req)
	case *godap.ThreadsRequest:
		s.onThreads(req)
	case *godap.LoadedSourcesRequest:
		s.onLoadedSources(req)
	case *loadSourceRequest:
		s.onLoadSource(req)
	case *godap.RestartRequest:
		s.onRestart(req)
	case *godap.DisconnectRequest:
		s.onDisconnect(req)
	case *godap.TerminateRequest:
		s.onTerminate(req)
	default:
		// Covers commands outside the schema (decoded as unknownRequest)
		// and schema commands this engine does not implement. Every
		// request gets exactly one response.
		if rm, ok := msg.(godap.RequestMessage); ok {
			r := rm.GetRequest()
			s.sendError(r, errors.MethodNotFound(r.Command))
			return
		}
		log.Printf("session %s: ignoring %T", s.session.ID, msg)
	}
}

// --- message construction ---

func (s *Server) newResponse(req *godap.Request) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: s.transport.NextSeq(), Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (s *Server) newEvent(name string) godap.Event {
	return godap.Event{
		ProtocolMessage: godap.ProtocolMessage{Seq: s.transport.NextSeq(), Type: "event"},
		Event:           name,
	}
}

func (s *Server) send(msg godap.Message) {
	if err := s.transport.Send(msg); err != nil {
		log.Printf("session %s: send failed: %v", s.session.ID, err)
	}
}

func (s *Server) sendError(req *godap.Request, derr *errors.Error) {
	resp := &godap.ErrorResponse{Response: s.newResponse(req)}
	resp.Success = false
	resp.Message = derr.Message
	id := 1
	if derr.Code == errors.CodeMethodNotFound {
		id = errors.MethodNotFoundID
	}
	resp.Body = godap.ErrorResponseBody{Error: &godap.ErrorMessage{
		Id:       id,
		Format:   derr.Message,
		ShowUser: true,
	}}
	s.send(resp)
}

// --- event emitter (used by the run worker and program output) ---

func (s *Server) emitStopped(reason types.StopReason, description string, line int) {
	s.send(&godap.StoppedEvent{
		Event: s.newEvent("stopped"),
		Body: godap.StoppedEventBody{
			Reason:            string(reason),
			Description:       description,
			ThreadId:          mainThreadID,
			AllThreadsStopped: true,
		},
	})
}

func (s *Server) emitOutput(category, text string) {
	s.send(&godap.OutputEvent{
		Event: s.newEvent("output"),
		Body:  godap.OutputEventBody{Category: category, Output: text},
	})
}

func (s *Server) emitExited(exitCode int) {
	s.send(&godap.ExitedEvent{
		Event: s.newEvent("exited"),
		Body:  godap.ExitedEventBody{ExitCode: exitCode},
	})
}

func (s *Server) emitTerminated() {
	s.send(&godap.TerminatedEvent{Event: s.newEvent("terminated")})
}

// Print satisfies the interpreter output sink; PRINT text becomes
// stdout output events.
func (s *Server) Print(text string) {
	s.emitOutput("stdout", text)
}

// --- handlers ---

func (s *Server) onInitialize(req *godap.InitializeRequest) {
	resp := &godap.InitializeResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsRestartRequest:           true,
		SupportsTerminateRequest:         true,
		SupportsSetVariable:              true,
		SupportsEvaluateForHovers:        true,
		SupportsLoadedSourcesRequest:     true,
	}
	s.send(resp)
}

// onLaunch serves both launch and attach; for this engine attaching to
// a program and launching it are the same thing.
func (s *Server) onLaunch(req *godap.Request, rawArgs []byte) {
	var args types.LaunchArguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			s.sendError(req, errors.BadArguments(req.Command, err))
			return
		}
	}

	text, path, err := resolveProgram(args)
	switch {
	case err == nil:
		if lerr := s.prog.Load(text); lerr != nil {
			s.sendError(req, errors.FromError(lerr))
			return
		}
		s.registerSource(path, text)
	case errors.CodeOf(err) == errors.CodeNoProgram && s.prog.Loaded():
		// Attaching to a program loaded earlier, e.g. via loadSource.
		path = s.session.SourcePath()
		if path == "" {
			path = defaultSourceRef
		}
	default:
		s.sendError(req, errors.FromError(err))
		return
	}
	if err := s.session.Launch(path); err != nil {
		s.sendError(req, errors.FromError(err))
		return
	}

	switch req.Command {
	case "attach":
		s.send(&godap.AttachResponse{Response: s.newResponse(req)})
	default:
		s.send(&godap.LaunchResponse{Response: s.newResponse(req)})
	}
	s.send(&godap.InitializedEvent{Event: s.newEvent("initialized")})
	s.send(&godap.ProcessEvent{
		Event: s.newEvent("process"),
		Body: godap.ProcessEventBody{
			Name:           "BASIC Interpreter",
			IsLocalProcess: true,
			StartMethod:    "launch",
		},
	})
	s.emitStopped(types.StopReasonEntry, "", s.session.CurrentLine())
}

func (s *Server) onSetBreakpoints(req *godap.SetBreakpointsRequest) {
	path := req.Arguments.Source.Path
	if path == "" {
		path = s.session.SourcePath()
	}
	previous := make(map[int]bool)
	for _, line := range s.bps.Lines(path) {
		previous[line] = true
	}

	lines := make([]int, 0, len(req.Arguments.Breakpoints))
	for _, bp := range req.Arguments.Breakpoints {
		lines = append(lines, bp.Line)
	}
	set := s.bps.Replace(path, lines)

	out := make([]godap.Breakpoint, 0, len(set))
	for _, bp := range set {
		out = append(out, godap.Breakpoint{
			Id:       bp.ID,
			Verified: true,
			Line:     bp.Line,
			Source:   &godap.Source{Name: req.Arguments.Source.Name, Path: path},
		})
	}
	resp := &godap.SetBreakpointsResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.SetBreakpointsResponseBody{Breakpoints: out}
	s.send(resp)

	// Lines that survived the replace were re-verified under new ids.
	for _, bp := range out {
		if previous[bp.Line] {
			s.send(&godap.BreakpointEvent{
				Event: s.newEvent("breakpoint"),
				Body:  godap.BreakpointEventBody{Reason: "changed", Breakpoint: bp},
			})
		}
	}
}

func (s *Server) onContinue(req *godap.ContinueRequest) {
	if state := s.session.State(); state != types.RunStatePaused {
		s.sendError(&req.Request, errors.IllegalTransition(req.Command, string(state)))
		return
	}
	resp := &godap.ContinueResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.ContinueResponseBody{AllThreadsContinued: true}
	s.send(resp)
	s.send(&godap.ContinuedEvent{
		Event: s.newEvent("continued"),
		Body:  godap.ContinuedEventBody{ThreadId: mainThreadID, AllThreadsContinued: true},
	})
	if err := s.session.Continue(); err != nil {
		s.emitOutput("stderr", err.Error()+"\n")
	}
}

// onStep serves next, stepIn, and stepOut. The language has one flat
// frame, so all three advance exactly one line. The response goes out
// before the worker is resumed so the stopped event follows it.
func (s *Server) onStep(req *godap.Request) {
	if state := s.session.State(); state != types.RunStatePaused {
		s.sendError(req, errors.IllegalTransition(req.Command, string(state)))
		return
	}
	switch req.Command {
	case "stepIn":
		s.send(&godap.StepInResponse{Response: s.newResponse(req)})
	case "stepOut":
		s.send(&godap.StepOutResponse{Response: s.newResponse(req)})
	default:
		s.send(&godap.NextResponse{Response: s.newResponse(req)})
	}
	if err := s.session.Step(); err != nil {
		s.emitOutput("stderr", err.Error()+"\n")
	}
}

// onPause acknowledges and lets the worker report the halt. Only when
// the session was already paused, so no worker will park, does the
// handler emit the stopped event itself.
func (s *Server) onPause(req *godap.PauseRequest) {
	alreadyPaused, err := s.session.Pause()
	if err != nil {
		s.sendError(&req.Request, errors.FromError(err))
		return
	}
	s.send(&godap.PauseResponse{Response: s.newResponse(&req.Request)})
	if alreadyPaused {
		s.emitStopped(types.StopReasonPause, "", s.session.CurrentLine())
	}
}

func (s *Server) onStackTrace(req *godap.StackTraceRequest) {
	path := s.session.SourcePath()
	frame := godap.StackFrame{
		Id:     mainFrameID,
		Name:   "main",
		Line:   s.session.CurrentLine(),
		Column: 1,
		Source: &godap.Source{Name: sourceName(path), Path: path},
	}
	resp := &godap.StackTraceResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.StackTraceResponseBody{
		StackFrames: []godap.StackFrame{frame},
		TotalFrames: 1,
	}
	s.send(resp)
}

// onScopes reports Local and Global views. The language has a single
// flat variable store, so both references resolve to the same set.
func (s *Server) onScopes(req *godap.ScopesRequest) {
	n := s.prog.VarCount()
	resp := &godap.ScopesResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.ScopesResponseBody{Scopes: []godap.Scope{
		{Name: "Local", VariablesReference: localScopeRef, NamedVariables: n},
		{Name: "Global", VariablesReference: globalScopeRef, NamedVariables: n},
	}}
	s.send(resp)
}

func (s *Server) onVariables(req *godap.VariablesRequest) {
	ref := req.Arguments.VariablesReference
	vars := []godap.Variable{}
	if ref == localScopeRef || ref == globalScopeRef {
		for _, v := range s.prog.Variables() {
			vars = append(vars, godap.Variable{Name: v.Name, Value: v.Value, Type: v.Type})
		}
	}
	resp := &godap.VariablesResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.VariablesResponseBody{Variables: vars}
	s.send(resp)
}

func (s *Server) onEvaluate(req *godap.EvaluateRequest) {
	if !s.cfg.CanEvaluate() {
		s.sendError(&req.Request, errors.NotAllowed("evaluate"))
		return
	}
	val, err := s.prog.Evaluate(req.Arguments.Expression)
	if err != nil {
		s.sendError(&req.Request, errors.FromError(err))
		return
	}
	resp := &godap.EvaluateResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.EvaluateResponseBody{Result: val.String(), Type: val.Kind().String()}
	s.send(resp)
}

func (s *Server) onSetVariable(req *godap.SetVariableRequest) {
	if !s.cfg.CanModifyVariables() {
		s.sendError(&req.Request, errors.NotAllowed("setVariable"))
		return
	}
	val, err := s.prog.SetVariable(req.Arguments.Name, req.Arguments.Value)
	if err != nil {
		s.sendError(&req.Request, errors.FromError(err))
		return
	}
	resp := &godap.SetVariableResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.SetVariableResponseBody{Value: val.String(), Type: val.Kind().String()}
	s.send(resp)
}

func (s *Server) onSource(req *godap.SourceRequest) {
	path := ""
	if req.Arguments.Source != nil {
		path = req.Arguments.Source.Path
	}
	content, ok := s.lookupSource(path)
	if !ok {
		s.sendError(&req.Request, errors.EvaluationError("no source for %q", path))
		return
	}
	resp := &godap.SourceResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.SourceResponseBody{Content: content}
	s.send(resp)
}

func (s *Server) onThreads(req *godap.ThreadsRequest) {
	resp := &godap.ThreadsResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.ThreadsResponseBody{Threads: []godap.Thread{
		{Id: mainThreadID, Name: "Main Thread"},
	}}
	s.send(resp)
}

func (s *Server) onLoadedSources(req *godap.LoadedSourcesRequest) {
	s.mu.Lock()
	paths := make([]string, 0, len(s.sources))
	for p := range s.sources {
		paths = append(paths, p)
	}
	s.mu.Unlock()
	sort.Strings(paths)

	list := make([]godap.Source, 0, len(paths))
	for _, p := range paths {
		list = append(list, godap.Source{Name: sourceName(p), Path: p})
	}
	resp := &godap.LoadedSourcesResponse{Response: s.newResponse(&req.Request)}
	resp.Body = godap.LoadedSourcesResponseBody{Sources: list}
	s.send(resp)
}

// onLoadSource replaces the loaded program text without launching it.
// The next launch or restart runs the new text.
func (s *Server) onLoadSource(req *loadSourceRequest) {
	text := req.Arguments.Content
	if text == "" {
		text = req.Arguments.Source
	}
	path := req.Arguments.Path
	if path == "" {
		path = defaultSourceRef
	}
	s.session.Terminate()
	if err := s.prog.Load(text); err != nil {
		s.sendError(&req.Request, errors.FromError(err))
		return
	}
	s.registerSource(path, text)

	resp := &loadSourceResponse{Response: s.newResponse(&req.Request)}
	resp.Body = loadSourceResponseBody{Path: path}
	s.send(resp)
	s.send(&godap.LoadedSourceEvent{
		Event: s.newEvent("loadedSource"),
		Body: godap.LoadedSourceEventBody{
			Reason: "new",
			Source: godap.Source{Name: sourceName(path), Path: path},
		},
	})
}

func (s *Server) onRestart(req *godap.RestartRequest) {
	if err := s.session.Restart(); err != nil {
		s.sendError(&req.Request, errors.FromError(err))
		return
	}
	s.send(&godap.RestartResponse{Response: s.newResponse(&req.Request)})
	s.emitStopped(types.StopReasonEntry, "", s.session.CurrentLine())
}

func (s *Server) onDisconnect(req *godap.DisconnectRequest) {
	s.send(&godap.DisconnectResponse{Response: s.newResponse(&req.Request)})
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *Server) onTerminate(req *godap.TerminateRequest) {
	s.session.Terminate()
	s.send(&godap.TerminateResponse{Response: s.newResponse(&req.Request)})
	s.emitTerminated()
}

// --- helpers ---

func (s *Server) registerSource(path, content string) {
	s.mu.Lock()
	s.sources[path] = content
	s.mu.Unlock()
}

func (s *Server) lookupSource(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if content, ok := s.sources[path]; ok {
		return content, true
	}
	// A client may ask for the active program without naming a path.
	if path == "" && s.prog.Loaded() {
		return s.prog.Source(), true
	}
	return "", false
}

// resolveProgram extracts program text from launch arguments. Inline
// text wins over a file path.
func resolveProgram(args types.LaunchArguments) (text, path string, err error) {
	switch {
	case args.Content != "":
		text = args.Content
	case args.Source != "":
		text = args.Source
	case args.Program != "":
		data, rerr := os.ReadFile(args.Program)
		if rerr != nil {
			return "", "", errors.LaunchFailed(rerr)
		}
		text = string(data)
		return text, args.Program, nil
	default:
		return "", "", errors.NoProgram()
	}
	path = args.Program
	if path == "" {
		path = args.Name
	}
	if path == "" {
		path = defaultSourceRef
	}
	return text, path, nil
}

func sourceName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
