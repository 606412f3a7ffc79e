package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/google/go-dap"

	"github.com/dapclient/core/internal/workerpool"
)

// runDispatcher is the single long-running task that owns the transport
// reader for the life of the connection (spec §4.4). It routes Responses
// to pending waiters, forwards Events to the engine in wire order, and
// replies to reverse requests with a generic failure. On end-of-stream or
// an unrecoverable read error it fails every pending waiter and publishes
// Terminated exactly once.
func (c *Core) runDispatcher() {
	for {
		msg, err := c.conn.Receive()
		if err != nil {
			c.handleTransportFailure(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Core) dispatch(msg dap.Message) {
	switch m := msg.(type) {
	case *dap.Response:
		c.routeResponse(m.RequestSeq, msg)
	case *dap.InitializedEvent:
		c.handleInitialized()
	case *dap.StoppedEvent:
		c.handleStopped(m)
	case *dap.ContinuedEvent:
		c.handleContinued(m)
	case *dap.TerminatedEvent:
		c.handleTerminatedEvent("")
	case *dap.ExitedEvent:
		c.handleTerminatedEvent("")
	default:
		c.handleOther(msg)
	}
}

// handleOther routes every message dispatch's named cases don't cover: any
// other concrete response subtype (ScopesResponse, VariablesResponse, …)
// and any reverse request from the adapter.
func (c *Core) handleOther(msg dap.Message) {
	if seq, ok := responseSeq(msg); ok {
		c.routeResponse(seq, msg)
		return
	}
	if req, ok := reverseRequest(msg); ok {
		c.replyReverseRequestFailure(req)
		return
	}
	c.logger.Debug("engine: ignoring unrecognized message", "type", reflect.TypeOf(msg))
}

func (c *Core) routeResponse(seq int, msg dap.Message) {
	if delivered := c.pending.Complete(seq, msg); !delivered {
		c.logger.Warn("engine: response for unknown or already-completed sequence dropped", "seq", seq)
	}
}

// responseSeq reports the RequestSeq of any concrete response type, using
// the same embedded-field projection pending.Table relies on internally —
// duplicated here in miniature since dispatch needs to distinguish
// "is this a response at all" before routing it.
func responseSeq(msg dap.Message) (int, bool) {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return 0, false
	}
	field := v.Elem().FieldByName("RequestSeq")
	if field.IsValid() && field.Kind() == reflect.Int {
		return int(field.Int()), true
	}
	respField := v.Elem().FieldByName("Response")
	if respField.IsValid() {
		if inner := respField.FieldByName("RequestSeq"); inner.IsValid() && inner.Kind() == reflect.Int {
			return int(inner.Int()), true
		}
	}
	return 0, false
}

// reverseRequest reports whether msg is a request originated by the
// adapter (e.g. runInTerminal) rather than a response to one of ours.
func reverseRequest(msg dap.Message) (*dap.Request, bool) {
	if req, ok := msg.(*dap.Request); ok {
		return req, true
	}
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, false
	}
	field := v.Elem().FieldByName("Request")
	if !field.IsValid() {
		return nil, false
	}
	req, ok := field.Addr().Interface().(*dap.Request)
	if !ok {
		return nil, false
	}
	return req, true
}

// replyReverseRequestFailure answers a reverse request with a generic
// success=false response (spec §4.4 step 4: full handling is out of
// scope).
func (c *Core) replyReverseRequestFailure(req *dap.Request) {
	resp := &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         false,
		Command:         req.Command,
		Message:         "not supported",
	}
	if err := c.conn.Send(resp); err != nil {
		c.logger.Warn("engine: failed to reply to reverse request", "command", req.Command, "error", err)
	}
}

func (c *Core) handleInitialized() {
	c.mu.Lock()
	select {
	case <-c.initialized:
	default:
		close(c.initialized)
	}
	c.mu.Unlock()
}

// handleStopped applies the cheap, in-order part of a Stopped event
// (recording the thread id, invalidating reference caches) synchronously
// in the dispatcher loop, then hands the expensive follow-up fetch
// (StackTrace -> Scopes -> Variables) to a separate goroutine so the
// dispatcher can keep reading the wire — including the very responses
// that follow-up goroutine is waiting on (spec §4.5 "the heart of the
// engine").
func (c *Core) handleStopped(evt *dap.StoppedEvent) {
	c.mu.Lock()
	c.currentThread = evt.Body.ThreadId
	c.currentFrame = 0
	c.mu.Unlock()

	go c.runStoppedFollowUp(evt.Body.ThreadId)
}

func (c *Core) handleContinued(evt *dap.ContinuedEvent) {
	c.mu.Lock()
	c.currentThread = evt.Body.ThreadId
	c.currentFrame = 0
	c.mu.Unlock()
	c.setState(Running)
	c.publishBare(Running)
}

func (c *Core) handleTerminatedEvent(reason string) {
	c.terminate(reason)
}

// handleTransportFailure is invoked once the dispatcher's Receive call
// fails (clean EOF or a lower-level I/O error). Every pending waiter is
// failed and Terminated is published exactly once (spec §4.4 step 5).
func (c *Core) handleTransportFailure(err error) {
	reason := "transport closed"
	if err != nil && !errors.Is(err, io.EOF) {
		reason = err.Error()
	}
	c.pending.FailAll(wrapError(KindTransport, "connection lost", err))
	c.terminate(reason)
}

func (c *Core) terminate(reason string) {
	c.closeDone.Do(func() {
		c.setState(Terminated)
		c.mu.Lock()
		thread := c.currentThread
		c.mu.Unlock()
		c.pub.Publish(ProgramState{
			State:            Terminated,
			CurrentThread:    thread,
			Breakpoints:      c.bps.List(),
			TerminatedReason: reason,
		})
		close(c.done)
	})
}

// runStoppedFollowUp implements the Stopped-event follow-up algorithm
// (spec §4.5): StackTrace for the whole stack, then Scopes and Variables
// for the top frame only, fetched with bounded parallelism across scopes.
func (c *Core) runStoppedFollowUp(threadID int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeouts.Command())
	defer cancel()

	stackSeq := c.nextSeq()
	stackReq := &dap.StackTraceRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: stackSeq, Type: "request"},
			Command:         "stackTrace",
		},
		Arguments: dap.StackTraceArguments{ThreadId: threadID},
	}
	msg, err := c.sendAndAwait(ctx, stackSeq, stackReq)
	if err != nil {
		c.logger.Warn("engine: stackTrace follow-up failed", "error", err)
		return
	}
	stackResp, ok := msg.(*dap.StackTraceResponse)
	if !ok {
		c.logger.Warn("engine: stackTrace response had unexpected shape")
		return
	}

	state := ProgramState{
		State:         Paused,
		CurrentThread: threadID,
		Stack:         stackResp.Body.StackFrames,
		Breakpoints:   c.bps.List(),
	}

	if len(stackResp.Body.StackFrames) == 0 {
		c.setState(Paused)
		c.pub.Publish(state)
		return
	}

	top := stackResp.Body.StackFrames[0]
	scopes, variables, fetchErr := c.fetchScopesAndVariables(ctx, top.Id)
	if fetchErr != nil {
		c.logger.Warn("engine: scopes/variables follow-up failed", "error", fetchErr)
	}
	state.CurrentFrame = top.Id
	state.Scopes = scopes
	state.Variables = variables

	c.mu.Lock()
	c.currentFrame = top.Id
	c.mu.Unlock()

	c.setState(Paused)
	c.pub.Publish(state)
}

// fetchScopesAndVariables issues Scopes(frameId) then fans out
// Variables(variablesReference) for every returned scope with bounded
// parallelism via the worker pool (spec §4.5 step 4).
func (c *Core) fetchScopesAndVariables(ctx context.Context, frameID int) ([]dap.Scope, map[int][]dap.Variable, *Error) {
	scopesSeq := c.nextSeq()
	scopesReq := &dap.ScopesRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: scopesSeq, Type: "request"},
			Command:         "scopes",
		},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}
	msg, err := c.sendAndAwait(ctx, scopesSeq, scopesReq)
	if err != nil {
		return nil, nil, err
	}
	scopesResp, ok := msg.(*dap.ScopesResponse)
	if !ok {
		return nil, nil, newError(KindDecode, "scopes response had unexpected shape")
	}
	scopes := scopesResp.Body.Scopes

	variables := make(map[int][]dap.Variable, len(scopes))
	if len(scopes) == 0 {
		return scopes, variables, nil
	}

	tasks := make([]workerpool.Task, len(scopes))
	refs := make([]int, len(scopes))
	for i, scope := range scopes {
		ref := scope.VariablesReference
		refs[i] = ref
		tasks[i] = workerpool.Task{
			ID: fmt.Sprintf("%d", ref),
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.fetchVariables(ctx, ref)
			},
		}
	}
	results := c.pool.Batch(ctx, tasks)

	for i, res := range results {
		ref := refs[i]
		if res.Error != nil {
			c.logger.Warn("engine: variables fetch failed", "variablesReference", ref, "error", res.Error)
			continue
		}
		vars, ok := res.Data.([]dap.Variable)
		if !ok {
			continue
		}
		variables[ref] = vars
	}
	return scopes, variables, nil
}

func (c *Core) fetchVariables(ctx context.Context, variablesReference int) ([]dap.Variable, error) {
	seq := c.nextSeq()
	req := &dap.VariablesRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
			Command:         "variables",
		},
		Arguments: dap.VariablesArguments{VariablesReference: variablesReference},
	}
	msg, err := c.sendAndAwait(ctx, seq, req)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*dap.VariablesResponse)
	if !ok {
		return nil, newError(KindDecode, "variables response had unexpected shape")
	}
	return resp.Body.Variables, nil
}
