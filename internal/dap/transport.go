// Package dap implements the debug protocol engine for the BASIC
// interpreter.
//
// It provides:
//   - Transport: framed message sending/receiving over TCP or stdio
//   - Session: the run-state machine driving line-at-a-time execution
//   - Server: request dispatch, breakpoints, and event emission
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/basiclang/basic-dap/internal/errors"
)

// MaxContentLength caps a single frame body. Larger frames are
// rejected as protocol errors before decoding.
const MaxContentLength = 10 * 1024 * 1024

// Transport handles framed protocol I/O over one client connection.
// Sends are serialized so the dispatch goroutine and the execution
// worker can both emit messages.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTransport creates a transport over an established connection.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NewTCPTransport wraps an accepted TCP connection.
func NewTCPTransport(conn net.Conn) *Transport {
	return NewTransport(conn)
}

// NewStdioTransport creates a transport over this process's stdin and
// stdout.
func NewStdioTransport() *Transport {
	return NewTransport(&stdioRWC{reader: os.Stdin, writer: os.Stdout})
}

type stdioRWC struct {
	reader io.Reader
	writer io.Writer
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	var err1, err2 error
	if c, ok := s.reader.(io.Closer); ok {
		err1 = c.Close()
	}
	if c, ok := s.writer.(io.Closer); ok {
		err2 = c.Close()
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// NextSeq returns the next outgoing sequence number.
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send sends a protocol message as one frame.
func (t *Transport) Send(msg godap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := godap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush message: %w", err)
	}

	return nil
}

// ReceiveRaw reads one frame and returns its undecoded body. Decoding
// stays with the caller so commands outside the standard schema can be
// recovered. The declared length is checked against MaxContentLength
// before the body is read.
func (t *Transport) ReceiveRaw() ([]byte, error) {
	header, err := t.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Content-Length:") {
		return nil, errors.BadFrame(fmt.Errorf("missing Content-Length header in %q", header))
	}
	length, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "Content-Length:")))
	if err != nil || length < 0 {
		return nil, errors.BadFrame(fmt.Errorf("invalid Content-Length in %q", header))
	}
	if length > MaxContentLength {
		return nil, errors.FrameTooLarge(length, MaxContentLength)
	}
	blank, err := t.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(blank) != "" {
		return nil, errors.BadFrame(fmt.Errorf("unexpected header %q", blank))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Close closes the transport.
func (t *Transport) Close() error {
	return t.conn.Close()
}
