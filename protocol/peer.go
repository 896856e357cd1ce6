package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workspace/agentcore"
)

// PassthroughLine is a non-control-protocol line handed to the executor's
// normalize_logs stage, tagged with the time the peer observed it.
type PassthroughLine struct {
	Raw       []byte
	Timestamp time.Time
}

// Peer is the ProtocolPeer (C4). It owns the child's stdin and stdout for
// its entire lifetime: construct one per spawned child, call Run in a
// goroutine, and use the Initialize/SetPermissionMode/SendUserMessage/
// Interrupt methods (safe for concurrent use — writes are serialized by a
// single mutex) until Shutdown returns.
type Peer struct {
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Outcome

	handler     RequestHandler
	passthrough chan<- PassthroughLine
	logger      *slog.Logger
	agentType   string

	cancel <-chan struct{}

	runDone chan struct{}
	runErr  error

	resultOnce sync.Once
	resultCh   chan struct{}

	handlerWG sync.WaitGroup
}

// NewPeer constructs a Peer. passthrough receives every non-control line
// (closed by the peer when its read loop ends, signalling "no more
// writes" to whatever is draining it into a LogStore). cancel is a
// one-shot cancellation receiver: when closed, the peer sends a
// best-effort interrupt (waiting at most 2s for its response) and then
// closes stdin. The read loop itself keeps running until stdout ends.
func NewPeer(stdin io.WriteCloser, stdout io.Reader, handler RequestHandler, passthrough chan<- PassthroughLine, logger *slog.Logger, agentType string, cancel <-chan struct{}) *Peer {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Peer{
		stdin:       stdin,
		stdout:      scanner,
		pending:     make(map[string]chan Outcome),
		handler:     handler,
		passthrough: passthrough,
		logger:      logger,
		agentType:   agentType,
		cancel:      cancel,
		runDone:     make(chan struct{}),
	}
}

// Run executes the read-task dispatch loop until stdout closes or a
// result line has been dispatched. A line that is not JSON is forwarded
// as passthrough and does not end the loop; cancellation does not end it
// either (see NewPeer). It is meant to be called on its own goroutine;
// Shutdown blocks until it returns.
func (p *Peer) Run(ctx context.Context) {
	defer close(p.runDone)
	defer close(p.passthrough)

	if p.cancel != nil {
		go func() {
			select {
			case <-p.cancel:
				cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = p.Interrupt(cctx)
				_ = p.stdin.Close()
			case <-p.runDone:
			}
		}()
	}

	for p.stdout.Scan() {
		line := append([]byte(nil), p.stdout.Bytes()...)
		if len(line) == 0 {
			continue
		}
		p.dispatch(ctx, line)
		select {
		case <-p.resultObserved():
			p.handlerWG.Wait()
			return
		default:
		}
	}
	p.handlerWG.Wait()
	if err := p.stdout.Err(); err != nil {
		p.runErr = &agentcore.ProtocolError{Kind: agentcore.ProtocolErrorIO, Detail: "stdout read failed", Cause: err}
		p.logger.Warn("protocol: read loop ended with error", "agent_type", p.agentType, "error", err)
	}
}

// resultObserved returns a channel closed once a terminal "result" line
// has been seen on stdout, lazily creating it so Run can select on it
// before dispatch has ever had a reason to create it.
func (p *Peer) resultObserved() <-chan struct{} {
	p.resultOnce.Do(func() { p.resultCh = make(chan struct{}) })
	return p.resultCh
}

// Err returns the error, if any, that ended the read loop. Call after
// Shutdown returns.
func (p *Peer) Err() error { return p.runErr }

func (p *Peer) dispatch(ctx context.Context, raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Not JSON at all, or not our envelope shape: treat as passthrough
		// for the executor's own normalization rather than a protocol
		// error — only line-framing/JSON-shape violations inside the
		// control channel itself are protocol errors.
		p.emitPassthrough(raw)
		return
	}

	switch msg.Type {
	case "control_request":
		p.handleControlRequest(ctx, msg)
	case "control_response":
		p.handleControlResponse(msg)
	case "result":
		p.emitPassthrough(raw)
		p.resultOnce.Do(func() { p.resultCh = make(chan struct{}) })
		close(p.resultCh)
	default:
		p.emitPassthrough(raw)
	}
}

func (p *Peer) emitPassthrough(raw []byte) {
	select {
	case p.passthrough <- PassthroughLine{Raw: raw, Timestamp: time.Now()}:
	default:
		p.logger.Warn("protocol: passthrough channel full, dropping line", "agent_type", p.agentType)
	}
}

func (p *Peer) handleControlRequest(ctx context.Context, msg wireMessage) {
	if msg.RequestID == "" || p.handler == nil {
		p.logger.Warn("protocol: control_request missing request_id or no handler installed", "agent_type", p.agentType)
		return
	}
	req := IncomingRequest{
		RequestID:  msg.RequestID,
		Subtype:    msg.Subtype,
		ToolName:   msg.ToolName,
		Input:      msg.Input,
		ToolUseID:  msg.ToolUseID,
		CallbackID: msg.CallbackID,
	}

	p.handlerWG.Add(1)
	go func() {
		defer p.handlerWG.Done()
		outcome := p.handler(ctx, req)
		if err := p.writeResponse(req.RequestID, outcome); err != nil {
			p.logger.Warn("protocol: failed to write control_response", "request_id", req.RequestID, "error", err)
		}
	}()
}

func (p *Peer) handleControlResponse(msg wireMessage) {
	if msg.RequestID == "" {
		p.logger.Warn("protocol: control_response missing request_id", "agent_type", p.agentType)
		return
	}
	p.pendingMu.Lock()
	ch, ok := p.pending[msg.RequestID]
	if ok {
		delete(p.pending, msg.RequestID)
	}
	p.pendingMu.Unlock()

	if !ok {
		p.logger.Warn("protocol: control_response for unknown request_id (protocol violation)", "request_id", msg.RequestID)
		return
	}
	outcome := Outcome{}
	if msg.Response != nil {
		outcome = *msg.Response
	}
	ch <- outcome
}

// writeLine serializes and writes one JSON object plus its newline
// terminator atomically under the write mutex.
func (p *Peer) writeLine(msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &agentcore.ProtocolError{Kind: agentcore.ProtocolErrorSerialization, Detail: "marshal outbound message", Cause: err}
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(data); err != nil {
		return &agentcore.ProtocolError{Kind: agentcore.ProtocolErrorIO, Detail: "write to child stdin", Cause: err}
	}
	return nil
}

func (p *Peer) writeResponse(requestID string, outcome Outcome) error {
	return p.writeLine(wireMessage{
		Type:      "control_response",
		RequestID: requestID,
		Response:  &outcome,
	})
}

// sendRequest writes a host-initiated control_request and blocks until the
// matching control_response arrives, the context is cancelled, or the read
// loop ends (whichever comes first).
func (p *Peer) sendRequest(ctx context.Context, subtype string, populate func(*wireMessage)) (Outcome, error) {
	id := uuid.NewString()
	ch := make(chan Outcome, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()

	msg := wireMessage{Type: "control_request", Subtype: subtype, RequestID: id}
	if populate != nil {
		populate(&msg)
	}

	if err := p.writeLine(msg); err != nil {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return Outcome{}, err
	}

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return Outcome{}, ctx.Err()
	case <-p.runDone:
		return Outcome{}, &agentcore.ProtocolError{Kind: agentcore.ProtocolErrorConnectionClosed, Detail: "read loop ended before response arrived"}
	}
}

// Initialize sends an initialize control_request carrying the hook map and
// awaits acknowledgement.
func (p *Peer) Initialize(ctx context.Context, hooks any) error {
	raw, err := json.Marshal(hooks)
	if err != nil {
		return &agentcore.ProtocolError{Kind: agentcore.ProtocolErrorSerialization, Detail: "marshal hooks", Cause: err}
	}
	_, err = p.sendRequest(ctx, "initialize", func(m *wireMessage) { m.Hooks = raw })
	return err
}

// SetPermissionMode sends a set_permission_mode control_request.
func (p *Peer) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	_, err := p.sendRequest(ctx, "set_permission_mode", func(m *wireMessage) { m.Mode = mode })
	return err
}

// SendUserMessage writes a non-control user-turn message.
func (p *Peer) SendUserMessage(text string) error {
	return p.writeLine(wireMessage{Role: "user", Content: text})
}

// Interrupt sends an interrupt control_request, best-effort bounded by ctx.
func (p *Peer) Interrupt(ctx context.Context) error {
	_, err := p.sendRequest(ctx, "interrupt", nil)
	return err
}

// Shutdown closes stdin and waits for the read task to terminate.
func (p *Peer) Shutdown() {
	_ = p.stdin.Close()
	<-p.runDone
}
