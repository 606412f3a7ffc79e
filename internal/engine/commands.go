package engine

import (
	"context"

	"github.com/google/go-dap"

	"github.com/dapclient/core/internal/breakpoints"
)

// Continue resumes the current thread (spec §4.5 command table).
func (c *Core) Continue(ctx context.Context) *Error {
	if err := c.limiter.Wait(ctx, "step"); err != nil {
		return wrapError(KindCancelled, "rate limit wait cancelled", err)
	}
	threadID, err := c.requireCurrentThread()
	if err != nil {
		return err
	}
	seq := c.nextSeq()
	req := &dap.ContinueRequest{
		Request:   c.newRequestWithSeq(seq, "continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}
	if _, sendErr := c.sendAndAwait(ctx, seq, req); sendErr != nil {
		return sendErr
	}
	c.setState(Running)
	c.publishBare(Running)
	return nil
}

// StepOver issues Next(currentThreadId).
func (c *Core) StepOver(ctx context.Context) *Error { return c.step(ctx, "next") }

// StepIn issues StepIn(currentThreadId).
func (c *Core) StepIn(ctx context.Context) *Error { return c.step(ctx, "stepIn") }

// StepOut issues StepOut(currentThreadId).
func (c *Core) StepOut(ctx context.Context) *Error { return c.step(ctx, "stepOut") }

func (c *Core) step(ctx context.Context, command string) *Error {
	if err := c.limiter.Wait(ctx, "step"); err != nil {
		return wrapError(KindCancelled, "rate limit wait cancelled", err)
	}
	threadID, err := c.requireCurrentThread()
	if err != nil {
		return err
	}

	seq := c.nextSeq()
	var req dap.Message
	switch command {
	case "next":
		req = &dap.NextRequest{Request: c.newRequestWithSeq(seq, command), Arguments: dap.NextArguments{ThreadId: threadID}}
	case "stepIn":
		req = &dap.StepInRequest{Request: c.newRequestWithSeq(seq, command), Arguments: dap.StepInArguments{ThreadId: threadID}}
	case "stepOut":
		req = &dap.StepOutRequest{Request: c.newRequestWithSeq(seq, command), Arguments: dap.StepOutArguments{ThreadId: threadID}}
	}
	if _, sendErr := c.sendAndAwait(ctx, seq, req); sendErr != nil {
		return sendErr
	}
	// The engine remains Running until the adapter's next Stopped event
	// (spec §4.5 command table); the response only confirms the step was
	// accepted, it does not itself carry the new stopped location.
	c.setState(Running)
	c.publishBare(Running)
	return nil
}

// Pause requests that the adapter stop the current thread. DAP defines no
// capability flag gating Pause, so unlike the other optional commands it
// is always forwarded rather than checked against Capabilities (spec §9
// open question: "pause ... Specification here: Capability error" applies
// to operations that do have a flag; Pause itself has none to check).
func (c *Core) Pause(ctx context.Context) *Error {
	threadID, err := c.requireCurrentThread()
	if err != nil {
		return err
	}
	seq := c.nextSeq()
	req := &dap.PauseRequest{
		Request:   c.newRequestWithSeq(seq, "pause"),
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	_, sendErr := c.sendAndAwait(ctx, seq, req)
	return sendErr
}

// AddBreakpoint adopts a breakpoint into the registry and resends
// SetBreakpoints for its source with the updated list (spec §4.5 command
// table).
func (c *Core) AddBreakpoint(ctx context.Context, path string, line int, condition string) (*breakpoints.Breakpoint, *Error) {
	stored, addErr := c.bps.Add(breakpoints.Breakpoint{Path: path, Line: line, Condition: condition})
	if addErr != nil {
		return nil, newError(KindInvalidState, addErr.Error())
	}
	if err := c.resyncSource(ctx, path, c.bps.ListBySource(path)); err != nil {
		return nil, err
	}
	updated, _ := c.bps.Get(stored.ID)
	return updated, nil
}

// RemoveBreakpoint drops a breakpoint from the registry and resends
// SetBreakpoints for its source with the reduced list.
func (c *Core) RemoveBreakpoint(ctx context.Context, id string) *Error {
	removed, ok := c.bps.Remove(id)
	if !ok {
		return newError(KindInvalidState, "unknown breakpoint id")
	}
	remaining := c.bps.ListBySource(removed.Path)
	if len(remaining) == 0 {
		// An empty SetBreakpoints clears every breakpoint for that source.
		return c.resyncSource(ctx, removed.Path, nil)
	}
	return c.resyncSource(ctx, removed.Path, remaining)
}

// Evaluate sends Evaluate(expr, frameId). Valid only in Paused or
// ScopeChange (spec §4.5 command table).
func (c *Core) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (*dap.EvaluateResponseBody, *Error) {
	if err := c.limiter.Wait(ctx, "evaluate"); err != nil {
		return nil, wrapError(KindCancelled, "rate limit wait cancelled", err)
	}
	state := c.getState()
	if state != Paused && state != ScopeChange {
		return nil, newError(KindInvalidState, "evaluate is only valid while paused")
	}

	seq := c.nextSeq()
	req := &dap.EvaluateRequest{
		Request: c.newRequestWithSeq(seq, "evaluate"),
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}
	msg, err := c.sendAndAwait(ctx, seq, req)
	if err != nil {
		// Per spec §4.5: a failed evaluate surfaces AdapterRefused and
		// does not change engine state.
		return nil, err
	}
	resp, ok := msg.(*dap.EvaluateResponse)
	if !ok {
		return nil, newError(KindDecode, "evaluate response had unexpected shape")
	}
	return &resp.Body, nil
}

// ChangeScope enters ScopeChange, fetches Scopes+Variables for frameID,
// publishes the updated state, and returns to Paused (spec §4.5 command
// table).
func (c *Core) ChangeScope(ctx context.Context, frameID int) *Error {
	if c.getState() != Paused {
		return newError(KindInvalidState, "change_scope is only valid while paused")
	}
	c.setState(ScopeChange)

	scopes, variables, err := c.fetchScopesAndVariables(ctx, frameID)
	if err != nil {
		c.setState(Paused)
		return err
	}

	c.mu.Lock()
	c.currentFrame = frameID
	thread := c.currentThread
	c.mu.Unlock()

	c.pub.Publish(ProgramState{
		State:         ScopeChange,
		CurrentThread: thread,
		CurrentFrame:  frameID,
		Stack:         c.pub.Current().Stack,
		Scopes:        scopes,
		Variables:     variables,
		Breakpoints:   c.bps.List(),
	})

	c.setState(Paused)
	c.pub.Publish(ProgramState{
		State:         Paused,
		CurrentThread: thread,
		CurrentFrame:  frameID,
		Stack:         c.pub.Current().Stack,
		Scopes:        scopes,
		Variables:     variables,
		Breakpoints:   c.bps.List(),
	})
	return nil
}

// Shutdown sends Disconnect(terminateDebuggee) best-effort and stops the
// dispatcher task. Idempotent and never panics, even mid-unwind of another
// failure (spec §4.5: "shutdown is idempotent and MUST never panic").
func (c *Core) Shutdown(ctx context.Context, terminateDebuggee bool) *Error {
	defer c.terminate("shutdown requested")

	select {
	case <-c.done:
		return nil
	default:
	}

	seq := c.nextSeq()
	req := &dap.DisconnectRequest{
		Request:   c.newRequestWithSeq(seq, "disconnect"),
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Shutdown())
	defer cancel()

	_, _ = c.sendAndAwait(shutdownCtx, seq, req)
	_ = c.conn.Close()
	return nil
}

func (c *Core) requireCurrentThread() (int, *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentThread == 0 {
		return 0, newError(KindNoCurrentThread, "no current thread recorded")
	}
	return c.currentThread, nil
}

func (c *Core) newRequestWithSeq(seq int, command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
		Command:         command,
	}
}
