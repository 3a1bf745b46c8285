package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/caffeineduck/codearena/hostfunc"
)

// Protocol constants - used by the guest prelude to talk to the host over
// stderr, with responses delivered as JSON lines on stdin.
//
//	call:  \x00ARENA:{json}\x00
//	error: \x00ARENA_ERROR:type\x1fline\x1fmessage\x00
const (
	protocolPrefix = "\x00ARENA:"
	errorPrefix    = "\x00ARENA_ERROR:"
	messageSuffix  = "\x00"
	fieldSep       = "\x1f"
)

type callRequest struct {
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Type  string `json:"type,omitempty"`
}

// guestError is an uncaught exception reported by the prelude's excepthook.
type guestError struct {
	Type    string
	Line    int
	Message string
}

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageError
)

// findNextMessage returns the index and type of the earliest protocol
// message in content.
func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, protocolPrefix)
	errIdx := strings.Index(content, errorPrefix)

	switch {
	case callIdx == -1 && errIdx == -1:
		return -1, messageNone
	case errIdx == -1 || (callIdx != -1 && callIdx < errIdx):
		return callIdx, messageCall
	default:
		return errIdx, messageError
	}
}

// extractMessage splits content at idx into the payload after prefix and the
// remaining text. ok is false while the message is still incomplete.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	start := idx + len(prefix)
	end := strings.Index(content[start:], messageSuffix)
	if end == -1 {
		return "", "", false
	}
	return content[start : start+end], content[start+end+len(messageSuffix):], true
}

func parseGuestError(payload string) *guestError {
	parts := strings.SplitN(payload, fieldSep, 3)
	ge := &guestError{Type: parts[0]}
	if len(parts) > 1 {
		ge.Line, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		ge.Message = parts[2]
	}
	return ge
}

// partialPrefix returns the length of a trailing fragment that may be the
// start of a protocol message split across writes.
func partialPrefix(content string) int {
	i := strings.LastIndexByte(content, 0)
	if i == -1 {
		return 0
	}
	tail := content[i:]
	if strings.HasPrefix(protocolPrefix, tail) || strings.HasPrefix(errorPrefix, tail) {
		return len(tail)
	}
	return 0
}

// protocolHandler intercepts stderr to handle host function calls.
// Regular stderr output passes through; protocol messages trigger host calls.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	report      *guestError
	mu          sync.Mutex
	writeMu     sync.Mutex
	wg          sync.WaitGroup
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		idx, msgType := findNextMessage(content)
		if msgType == messageNone {
			keep := len(content) - partialPrefix(content)
			p.realStderr.WriteString(content[:keep])
			p.buf.Reset()
			p.buf.WriteString(content[keep:])
			break
		}

		p.realStderr.WriteString(content[:idx])

		prefix := protocolPrefix
		if msgType == messageError {
			prefix = errorPrefix
		}
		payload, remaining, ok := extractMessage(content, idx, prefix)
		if !ok {
			p.buf.Reset()
			p.buf.WriteString(content[idx:])
			break
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)

		if msgType == messageError {
			p.report = parseGuestError(payload)
			continue
		}

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		p.respond(p.handleCall(req))
	}

	return len(data), nil
}

// respond writes asynchronously: the guest only reads its response after
// the Write that carried the call has returned.
func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		p.stdinWriter.Write(append(data, '\n'))
	}()
}

func (p *protocolHandler) handleCall(req callRequest) callResponse {
	fn, ok := p.registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(p.ctx, req.Args)
	if err != nil {
		var herr *hostfunc.Error
		if errors.As(err, &herr) {
			return callResponse{Error: herr.Message, Type: herr.Type}
		}
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// Close flushes buffered text to stderr and waits for pending responses.
// The stdin pipe must already be closed so blocked writers return.
func (p *protocolHandler) Close() {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realStderr.Write(p.buf.Bytes())
	p.buf.Reset()
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}

func (p *protocolHandler) Report() *guestError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}
