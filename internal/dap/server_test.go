package dap

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	godap "github.com/google/go-dap"

	"github.com/basiclang/basic-dap/internal/config"
	"github.com/basiclang/basic-dap/internal/errors"
	"github.com/basiclang/basic-dap/internal/interp"
)

// testClient speaks the wire protocol from the client side of a pipe.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

func startTestServer(t *testing.T) *testClient {
	t.Helper()
	return startTestServerWithConfig(t, config.DefaultConfig())
}

func startTestServerWithConfig(t *testing.T, cfg *config.Config) *testClient {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := NewServer(NewTransport(serverConn), interp.NoInput{}, cfg)
	go srv.Serve()
	t.Cleanup(func() { clientConn.Close() })
	return &testClient{t: t, conn: clientConn, reader: bufio.NewReader(clientConn)}
}

func (c *testClient) request(command string, fill func(*godap.Request) godap.Message) {
	c.t.Helper()
	c.seq++
	req := godap.Request{
		ProtocolMessage: godap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
	msg := fill(&req)
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := godap.WriteProtocolMessage(c.conn, msg); err != nil {
		c.t.Fatalf("send %s: %v", command, err)
	}
}

func (c *testClient) read() godap.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := godap.ReadProtocolMessage(c.reader)
	if err != nil {
		c.t.Fatalf("read message: %v", err)
	}
	return msg
}

// readEvent skips to the next event with the given name.
func (c *testClient) readEvent(name string) godap.Message {
	c.t.Helper()
	for i := 0; i < 16; i++ {
		msg := c.read()
		if ev, ok := msg.(godap.EventMessage); ok && ev.GetEvent().Event == name {
			return msg
		}
	}
	c.t.Fatalf("event %q never arrived", name)
	return nil
}

func (c *testClient) initialize() {
	c.t.Helper()
	c.request("initialize", func(r *godap.Request) godap.Message {
		return &godap.InitializeRequest{Request: *r, Arguments: godap.InitializeRequestArguments{AdapterID: "basic"}}
	})
	resp, ok := c.read().(*godap.InitializeResponse)
	if !ok || !resp.Success {
		c.t.Fatalf("initialize failed: %+v", resp)
	}
}

func (c *testClient) launch(program string) {
	c.t.Helper()
	args, _ := json.Marshal(map[string]string{"content": program, "name": "demo.bas"})
	c.request("launch", func(r *godap.Request) godap.Message {
		return &godap.LaunchRequest{Request: *r, Arguments: args}
	})
	if resp, ok := c.read().(*godap.LaunchResponse); !ok || !resp.Success {
		c.t.Fatalf("launch failed: %+v", resp)
	}
	if _, ok := c.read().(*godap.InitializedEvent); !ok {
		c.t.Fatal("expected initialized event after launch")
	}
	proc, ok := c.read().(*godap.ProcessEvent)
	if !ok || proc.Body.Name != "BASIC Interpreter" {
		c.t.Fatalf("expected process event, got %+v", proc)
	}
	stopped, ok := c.read().(*godap.StoppedEvent)
	if !ok || stopped.Body.Reason != "entry" {
		c.t.Fatalf("expected stopped(entry), got %+v", stopped)
	}
}

const demoProgram = "LET x = 1\nLET x = x + 1\nPRINT x\n"

func TestServer_InitializeCapabilities(t *testing.T) {
	c := startTestServer(t)
	c.request("initialize", func(r *godap.Request) godap.Message {
		return &godap.InitializeRequest{Request: *r}
	})
	resp, ok := c.read().(*godap.InitializeResponse)
	if !ok {
		t.Fatal("expected an initialize response")
	}
	if resp.RequestSeq != 1 || !resp.Success {
		t.Errorf("bad response envelope: %+v", resp.Response)
	}
	if !resp.Body.SupportsRestartRequest || !resp.Body.SupportsSetVariable {
		t.Errorf("missing capabilities: %+v", resp.Body)
	}
}

func TestServer_LaunchInlineProgram(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)
}

func TestServer_SetBreakpointsVerified(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("setBreakpoints", func(r *godap.Request) godap.Message {
		return &godap.SetBreakpointsRequest{Request: *r, Arguments: godap.SetBreakpointsArguments{
			Source:      godap.Source{Name: "demo.bas", Path: "demo.bas"},
			Breakpoints: []godap.SourceBreakpoint{{Line: 2}, {Line: 3}},
		}}
	})
	resp, ok := c.read().(*godap.SetBreakpointsResponse)
	if !ok {
		t.Fatal("expected a setBreakpoints response")
	}
	bps := resp.Body.Breakpoints
	if len(bps) != 2 {
		t.Fatalf("expected 2 breakpoints, got %d", len(bps))
	}
	if !bps[0].Verified || !bps[1].Verified {
		t.Error("breakpoints should verify")
	}
	if bps[0].Id >= bps[1].Id {
		t.Errorf("ids should ascend: %d, %d", bps[0].Id, bps[1].Id)
	}
}

func TestServer_ContinueHitsBreakpoint(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("setBreakpoints", func(r *godap.Request) godap.Message {
		return &godap.SetBreakpointsRequest{Request: *r, Arguments: godap.SetBreakpointsArguments{
			Source:      godap.Source{Path: "demo.bas"},
			Breakpoints: []godap.SourceBreakpoint{{Line: 3}},
		}}
	})
	c.read()

	c.request("continue", func(r *godap.Request) godap.Message {
		return &godap.ContinueRequest{Request: *r, Arguments: godap.ContinueArguments{ThreadId: 1}}
	})
	if resp, ok := c.read().(*godap.ContinueResponse); !ok || !resp.Success {
		t.Fatalf("continue failed: %+v", resp)
	}
	if _, ok := c.read().(*godap.ContinuedEvent); !ok {
		t.Fatal("expected continued event")
	}
	stopped := c.readEvent("stopped").(*godap.StoppedEvent)
	if stopped.Body.Reason != "breakpoint" {
		t.Errorf("expected breakpoint stop, got %q", stopped.Body.Reason)
	}

	c.request("stackTrace", func(r *godap.Request) godap.Message {
		return &godap.StackTraceRequest{Request: *r, Arguments: godap.StackTraceArguments{ThreadId: 1}}
	})
	st := c.read().(*godap.StackTraceResponse)
	if len(st.Body.StackFrames) != 1 {
		t.Fatalf("expected one frame, got %d", len(st.Body.StackFrames))
	}
	frame := st.Body.StackFrames[0]
	if frame.Id != 1 || frame.Name != "main" || frame.Line != 3 {
		t.Errorf("unexpected frame: %+v", frame)
	}
}

func TestServer_StepEmitsStoppedAfterResponse(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("next", func(r *godap.Request) godap.Message {
		return &godap.NextRequest{Request: *r, Arguments: godap.NextArguments{ThreadId: 1}}
	})
	if _, ok := c.read().(*godap.NextResponse); !ok {
		t.Fatal("expected the next response before the stopped event")
	}
	stopped := c.readEvent("stopped").(*godap.StoppedEvent)
	if stopped.Body.Reason != "step" {
		t.Errorf("expected step stop, got %q", stopped.Body.Reason)
	}

	c.request("stackTrace", func(r *godap.Request) godap.Message {
		return &godap.StackTraceRequest{Request: *r, Arguments: godap.StackTraceArguments{ThreadId: 1}}
	})
	st := c.read().(*godap.StackTraceResponse)
	if line := st.Body.StackFrames[0].Line; line != 2 {
		t.Errorf("expected line 2 after one step, got %d", line)
	}
}

func TestServer_ScopesAndVariables(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("next", func(r *godap.Request) godap.Message {
		return &godap.NextRequest{Request: *r, Arguments: godap.NextArguments{ThreadId: 1}}
	})
	c.read()
	c.readEvent("stopped")

	c.request("scopes", func(r *godap.Request) godap.Message {
		return &godap.ScopesRequest{Request: *r, Arguments: godap.ScopesArguments{FrameId: 1}}
	})
	scopes := c.read().(*godap.ScopesResponse).Body.Scopes
	if len(scopes) != 2 || scopes[0].Name != "Local" || scopes[1].Name != "Global" {
		t.Fatalf("unexpected scopes: %+v", scopes)
	}

	c.request("variables", func(r *godap.Request) godap.Message {
		return &godap.VariablesRequest{Request: *r, Arguments: godap.VariablesArguments{
			VariablesReference: scopes[0].VariablesReference,
		}}
	})
	vars := c.read().(*godap.VariablesResponse).Body.Variables
	if len(vars) != 1 || vars[0].Name != "x" || vars[0].Value != "1" {
		t.Fatalf("unexpected variables: %+v", vars)
	}
	if vars[0].Type != "integer" {
		t.Errorf("expected integer type, got %q", vars[0].Type)
	}
}

func TestServer_EvaluateAndSetVariable(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("next", func(r *godap.Request) godap.Message {
		return &godap.NextRequest{Request: *r, Arguments: godap.NextArguments{ThreadId: 1}}
	})
	c.read()
	c.readEvent("stopped")

	c.request("evaluate", func(r *godap.Request) godap.Message {
		return &godap.EvaluateRequest{Request: *r, Arguments: godap.EvaluateArguments{Expression: "x + 41"}}
	})
	eval := c.read().(*godap.EvaluateResponse)
	if eval.Body.Result != "42" {
		t.Errorf("expected 42, got %q", eval.Body.Result)
	}

	c.request("evaluate", func(r *godap.Request) godap.Message {
		return &godap.EvaluateRequest{Request: *r, Arguments: godap.EvaluateArguments{Expression: "x + \"s\""}}
	})
	if resp, ok := c.read().(*godap.ErrorResponse); !ok || resp.Success {
		t.Fatalf("type mismatch should produce an error response, got %+v", resp)
	}

	c.request("setVariable", func(r *godap.Request) godap.Message {
		return &godap.SetVariableRequest{Request: *r, Arguments: godap.SetVariableArguments{
			VariablesReference: 1, Name: "x", Value: "10",
		}}
	})
	set := c.read().(*godap.SetVariableResponse)
	if set.Body.Value != "10" {
		t.Errorf("expected 10, got %q", set.Body.Value)
	}
}

func TestServer_ProgramOutputAndExit(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("continue", func(r *godap.Request) godap.Message {
		return &godap.ContinueRequest{Request: *r, Arguments: godap.ContinueArguments{ThreadId: 1}}
	})
	c.read()
	c.read()

	out := c.readEvent("output").(*godap.OutputEvent)
	if out.Body.Category != "stdout" || out.Body.Output != "2\n" {
		t.Errorf("unexpected output event: %+v", out.Body)
	}
	exited := c.readEvent("exited").(*godap.ExitedEvent)
	if exited.Body.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", exited.Body.ExitCode)
	}
	c.readEvent("terminated")
}

func TestServer_UnknownCommand(t *testing.T) {
	c := startTestServer(t)
	c.initialize()

	c.request("fancyNewCommand", func(r *godap.Request) godap.Message {
		return r
	})
	resp, ok := c.read().(*godap.ErrorResponse)
	if !ok {
		t.Fatal("expected an error response")
	}
	if resp.Success {
		t.Error("unknown command must not succeed")
	}
	if resp.Body.Error == nil || resp.Body.Error.Id != errors.MethodNotFoundID {
		t.Errorf("expected error id %d, got %+v", errors.MethodNotFoundID, resp.Body.Error)
	}
	if resp.RequestSeq != 2 {
		t.Errorf("error response must echo the request seq, got %d", resp.RequestSeq)
	}
}

func TestServer_UnhandledSchemaCommand(t *testing.T) {
	c := startTestServer(t)
	c.initialize()

	c.request("modules", func(r *godap.Request) godap.Message {
		return &godap.ModulesRequest{Request: *r}
	})
	resp, ok := c.read().(*godap.ErrorResponse)
	if !ok {
		t.Fatal("expected an error response")
	}
	if resp.Success {
		t.Error("unhandled command must not succeed")
	}
	if resp.Command != "modules" || resp.RequestSeq != 2 {
		t.Errorf("response must echo the request: %+v", resp.Response)
	}
	if resp.Body.Error == nil || resp.Body.Error.Id != errors.MethodNotFoundID {
		t.Errorf("expected error id %d, got %+v", errors.MethodNotFoundID, resp.Body.Error)
	}
}

func TestServer_PauseWhilePausedEmitsSingleStopped(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("pause", func(r *godap.Request) godap.Message {
		return &godap.PauseRequest{Request: *r, Arguments: godap.PauseArguments{ThreadId: 1}}
	})
	if resp, ok := c.read().(*godap.PauseResponse); !ok || !resp.Success {
		t.Fatalf("pause failed: %+v", resp)
	}
	stopped, ok := c.read().(*godap.StoppedEvent)
	if !ok || stopped.Body.Reason != "pause" {
		t.Fatalf("expected stopped(pause), got %+v", stopped)
	}

	// The next frame must answer the next request; a second stopped
	// event here would mean one halt was reported twice.
	c.request("threads", func(r *godap.Request) godap.Message {
		return &godap.ThreadsRequest{Request: *r}
	})
	if _, ok := c.read().(*godap.ThreadsResponse); !ok {
		t.Fatal("expected the threads response, not another event")
	}
}

func TestServer_ConfigDisablesEvaluateAndSetVariable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowEvaluate = false
	cfg.AllowModify = false
	c := startTestServerWithConfig(t, cfg)
	c.initialize()
	c.launch(demoProgram)

	c.request("evaluate", func(r *godap.Request) godap.Message {
		return &godap.EvaluateRequest{Request: *r, Arguments: godap.EvaluateArguments{Expression: "1 + 1"}}
	})
	if resp, ok := c.read().(*godap.ErrorResponse); !ok || resp.Success {
		t.Fatalf("evaluate should be rejected when disabled, got %+v", resp)
	}

	c.request("setVariable", func(r *godap.Request) godap.Message {
		return &godap.SetVariableRequest{Request: *r, Arguments: godap.SetVariableArguments{
			VariablesReference: 1, Name: "x", Value: "10",
		}}
	})
	if resp, ok := c.read().(*godap.ErrorResponse); !ok || resp.Success {
		t.Fatalf("setVariable should be rejected when disabled, got %+v", resp)
	}
}

func TestServer_LoadSourceCustomCommand(t *testing.T) {
	c := startTestServer(t)
	c.initialize()

	c.seq++
	body := map[string]interface{}{
		"seq": c.seq, "type": "request", "command": "loadSource",
		"arguments": map[string]string{"path": "new.bas", "content": "PRINT 99\n"},
	}
	raw, _ := json.Marshal(body)
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	frame := "Content-Length: " + strconv.Itoa(len(raw)) + "\r\n\r\n" + string(raw)
	if _, err := c.conn.Write([]byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	// The response command is outside the standard schema, so the
	// stock decoder cannot turn it into a typed message.
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	respRaw, err := godap.ReadBaseMessage(c.reader)
	if err != nil {
		t.Fatalf("read loadSource response: %v", err)
	}
	var resp struct {
		Success bool   `json:"success"`
		Command string `json:"command"`
		Body    struct {
			Path string `json:"path"`
		} `json:"body"`
	}
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		t.Fatalf("decode loadSource response: %v", err)
	}
	if !resp.Success || resp.Command != "loadSource" || resp.Body.Path != "new.bas" {
		t.Fatalf("loadSource failed: %+v", resp)
	}

	loaded := c.readEvent("loadedSource").(*godap.LoadedSourceEvent)
	if loaded.Body.Reason != "new" || loaded.Body.Source.Path != "new.bas" {
		t.Errorf("unexpected loadedSource event: %+v", loaded.Body)
	}

	// The loaded text runs on the next restart.
	c.request("restart", func(r *godap.Request) godap.Message {
		return &godap.RestartRequest{Request: *r}
	})
	if resp, ok := c.read().(*godap.RestartResponse); !ok || !resp.Success {
		t.Fatalf("restart after loadSource failed: %+v", resp)
	}
	c.readEvent("stopped")

	c.request("continue", func(r *godap.Request) godap.Message {
		return &godap.ContinueRequest{Request: *r, Arguments: godap.ContinueArguments{ThreadId: 1}}
	})
	c.read()
	c.read()
	out := c.readEvent("output").(*godap.OutputEvent)
	if out.Body.Output != "99\n" {
		t.Errorf("expected the replaced program's output, got %q", out.Body.Output)
	}
}

func TestServer_DisconnectEndsSession(t *testing.T) {
	c := startTestServer(t)
	c.initialize()
	c.launch(demoProgram)

	c.request("disconnect", func(r *godap.Request) godap.Message {
		return &godap.DisconnectRequest{Request: *r}
	})
	if resp, ok := c.read().(*godap.DisconnectResponse); !ok || !resp.Success {
		t.Fatalf("disconnect failed: %+v", resp)
	}
}
