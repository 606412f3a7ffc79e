package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"

	"github.com/dapclient/core/internal/breakpoints"
	"github.com/dapclient/core/internal/config"
	"github.com/dapclient/core/internal/langprofile"
	"github.com/dapclient/core/internal/pending"
	"github.com/dapclient/core/internal/publisher"
	"github.com/dapclient/core/internal/ratelimit"
	"github.com/dapclient/core/internal/transport"
	"github.com/dapclient/core/internal/workerpool"
)

// StartConfig supplies everything the caller chooses at session start.
// Launch/Attach payloads are forwarded to the adapter as given, except that
// their "stopOnEntry" key is always set from the resolved stop-on-entry
// value (overwriting any value the caller put there).
type StartConfig struct {
	// LaunchArgs, if non-nil, is sent as the Launch request's arguments.
	// Exactly one of LaunchArgs/AttachArgs must be set.
	LaunchArgs map[string]interface{}
	AttachArgs map[string]interface{}

	// Language selects defaults from the langprofile registry (spec §6:
	// "a language identifier, used only to select defaults").
	Language string

	// StopOnEntry requests that the adapter stop at the program's entry
	// point rather than running to the first breakpoint.
	StopOnEntry bool

	// InitialBreakpoints are applied during the Configuring phase
	// (spec §4.5 step 4) before ConfigurationDone is sent.
	InitialBreakpoints []InitialBreakpoint

	// ExceptionFilters names the exception-breakpoint filters to enable,
	// gated on the adapter's capability.
	ExceptionFilters []string

	// FunctionBreakpoints names functions to break on entry, gated on the
	// adapter's SupportsFunctionBreakpoints capability (spec §4.5 step 4).
	FunctionBreakpoints []string
}

// InitialBreakpoint mirrors persist.InitialBreakpoint without importing
// that package from engine, keeping the dependency direction the same as
// the rest of the tree (engine is the top of the graph; persist is a
// leaf consumed by the caller that constructs a StartConfig).
type InitialBreakpoint struct {
	Path string
	Line int
	Name string
}

// NewInitialBreakpoint builds the InitialBreakpoint StartConfig expects,
// used by callers translating a persist.InitialBreakpoint into this
// package's input shape without engine depending on persist.
func NewInitialBreakpoint(path string, line int, name string) InitialBreakpoint {
	return InitialBreakpoint{Path: path, Line: line, Name: name}
}

// Core is the debugger engine: the state machine, breakpoint registry,
// and command interface described in spec §4.4-§4.7. It is grounded on
// the teacher's debugger.Client, split along the lines spec §2 draws
// between the dispatcher, the engine proper, and the publisher.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	conn     transport.Conn
	pending  *pending.Table
	pub      *publisher.Publisher[ProgramState]
	bps      *breakpoints.Registry
	pool     *workerpool.Pool
	limiter  *ratelimit.Limiter
	profiles *langprofile.Registry

	seqCounter int64

	mu            sync.Mutex
	state         State
	currentThread int
	currentFrame  int
	capabilities  dap.Capabilities
	initialized   chan struct{}

	done      chan struct{}
	closeDone sync.Once
}

// New creates a Core bound to an already-established transport
// connection. Use transport.Dial (or transport.New over any
// io.ReadWriteCloser, e.g. a net.Pipe half in tests) to obtain conn.
func New(conn transport.Conn, cfg *config.Config, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := &Core{
		cfg:      cfg,
		logger:   logger,
		conn:     conn,
		pending:  pending.New(),
		pub:      publisher.New[ProgramState](),
		bps:      breakpoints.New(),
		pool:     workerpool.New(4),
		limiter:  ratelimit.New(),
		profiles: langprofile.NewRegistry(),
		state:       Uninitialised,
		initialized: make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.pub.Publish(ProgramState{State: Uninitialised})
	go c.runDispatcher()
	return c
}

// Subscribe registers a new state-transition subscriber (spec §4.6).
func (c *Core) Subscribe() (string, <-chan ProgramState) {
	return c.pub.Subscribe()
}

// Unsubscribe removes a subscriber.
func (c *Core) Unsubscribe(id string) {
	c.pub.Unsubscribe(id)
}

// CurrentState returns the most recently published state synchronously
// (spec §6: "the current state is always readable synchronously").
func (c *Core) CurrentState() ProgramState {
	return c.pub.Current()
}

func (c *Core) nextSeq() int {
	return int(atomic.AddInt64(&c.seqCounter, 1))
}

func (c *Core) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Core) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// newRequest builds the common Request envelope for command.
func (c *Core) newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.nextSeq(), Type: "request"},
		Command:         command,
	}
}

// sendAndAwait registers req's sequence number, writes req, and blocks for
// the matching response, a deadline, the connection closing, or ctx
// cancellation — whichever comes first (spec §5: "Every command exposes
// an optional deadline"). When ctx carries no deadline of its own, the
// configured per-command timeout (cfg.Timeouts.Command()) is applied.
func (c *Core) sendAndAwait(ctx context.Context, seq int, req dap.Message) (dap.Message, *Error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.cfg.Timeouts.Command() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeouts.Command())
		defer cancel()
	}

	waiter := c.pending.Register(seq)

	if err := c.conn.Send(req); err != nil {
		c.pending.Remove(seq)
		return nil, wrapError(KindTransport, "failed to send request", err)
	}

	select {
	case outcome := <-waiter:
		if outcome.Err != nil {
			return nil, wrapError(KindTransport, "connection failed while awaiting response", outcome.Err)
		}
		if outcome.Response == nil {
			return nil, newError(KindDecode, "adapter response could not be decoded")
		}
		if !outcome.Response.Success {
			return nil, newError(KindAdapterRefused, outcome.Response.Message)
		}
		return outcome.Message, nil
	case <-ctx.Done():
		c.pending.Remove(seq)
		if ctx.Err() == context.Canceled {
			return nil, wrapError(KindCancelled, "request cancelled", ctx.Err())
		}
		return nil, wrapError(KindTimeout, "deadline exceeded awaiting response", ctx.Err())
	case <-c.done:
		c.pending.Remove(seq)
		return nil, newError(KindNotConnected, "connection closed")
	}
}

// Start runs the initialization handshake of spec §4.5: Initialize,
// Launch/Attach, await Initialized, apply breakpoints, ConfigurationDone.
func (c *Core) Start(ctx context.Context, start StartConfig) *Error {
	if c.getState() != Uninitialised {
		return newError(KindInvalidState, "Start called outside Uninitialised state")
	}
	c.setState(Initialising)
	c.publishBare(Initialising)

	profile := c.profiles.Lookup(start.Language)
	clientID := c.cfg.ClientID
	if profile.ClientIDSuffix != "" {
		clientID = clientID + "-" + profile.ClientIDSuffix
	}

	initSeq := c.nextSeq()
	initReq := &dap.InitializeRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: initSeq, Type: "request"},
			Command:         "initialize",
		},
		Arguments: dap.InitializeRequestArguments{
			ClientID:        clientID,
			AdapterID:       "dapclient",
			Locale:          c.cfg.Locale,
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	}
	msg, err := c.sendAndAwait(ctx, initSeq, initReq)
	if err != nil {
		return err
	}
	initResp, ok := msg.(*dap.InitializeResponse)
	if !ok {
		return newError(KindDecode, "initialize response had unexpected shape")
	}
	c.mu.Lock()
	c.capabilities = initResp.Body
	c.mu.Unlock()

	stopOnEntry := start.StopOnEntry || profile.DefaultStopOnEntry
	if launchErr := c.sendLaunchOrAttach(ctx, start, stopOnEntry); launchErr != nil {
		return launchErr
	}

	if waitErr := c.awaitInitializedEvent(ctx); waitErr != nil {
		return waitErr
	}
	c.setState(Configuring)
	c.publishBare(Configuring)

	if applyErr := c.applyInitialBreakpoints(ctx, start.InitialBreakpoints, start.ExceptionFilters, start.FunctionBreakpoints); applyErr != nil {
		return applyErr
	}

	cdSeq := c.nextSeq()
	cdReq := &dap.ConfigurationDoneRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: cdSeq, Type: "request"},
			Command:         "configurationDone",
		},
	}
	if _, err := c.sendAndAwait(ctx, cdSeq, cdReq); err != nil {
		return err
	}

	c.setState(Running)
	c.publishBare(Running)
	return nil
}

// sendLaunchOrAttach sends Launch or Attach without awaiting its response
// before the caller proceeds to await Initialized (spec §4.5 step 2: "Do
// not await the response before step 3").
func (c *Core) sendLaunchOrAttach(ctx context.Context, start StartConfig, stopOnEntry bool) *Error {
	args := start.LaunchArgs
	isAttach := args == nil
	if isAttach {
		args = start.AttachArgs
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	args["stopOnEntry"] = stopOnEntry

	argsJSON, jsonErr := json.Marshal(args)
	if jsonErr != nil {
		return wrapError(KindDecode, "failed to marshal launch/attach arguments", jsonErr)
	}

	seq := c.nextSeq()
	var req dap.Message
	command := "launch"
	if isAttach {
		command = "attach"
		req = &dap.AttachRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
				Command:         command,
			},
			Arguments: argsJSON,
		}
	} else {
		req = &dap.LaunchRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
				Command:         command,
			},
			Arguments: argsJSON,
		}
	}

	waiter := c.pending.Register(seq)
	if err := c.conn.Send(req); err != nil {
		c.pending.Remove(seq)
		return wrapError(KindTransport, "failed to send "+command, err)
	}
	// Fire-and-forget: the response is awaited on a background goroutine so
	// the handshake can move on to awaiting Initialized. A failure here
	// only surfaces in logs; the adapter is expected to also emit
	// Terminated if launch truly failed.
	go func() {
		select {
		case outcome := <-waiter:
			if outcome.Err != nil {
				c.logger.Warn("engine: launch/attach response delivery failed", "error", outcome.Err)
			} else if outcome.Response != nil && !outcome.Response.Success {
				c.logger.Warn("engine: adapter refused launch/attach", "message", outcome.Response.Message)
			}
		case <-c.done:
		}
	}()
	_ = ctx
	return nil
}

func (c *Core) awaitInitializedEvent(ctx context.Context) *Error {
	select {
	case <-c.initializedCh():
		return nil
	case <-ctx.Done():
		return wrapError(KindTimeout, "timed out awaiting Initialized event", ctx.Err())
	case <-c.done:
		return newError(KindNotConnected, "connection closed before Initialized event")
	}
}

func (c *Core) initializedCh() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// applyInitialBreakpoints groups breakpoints by source path and issues one
// SetBreakpoints per source, plus SetFunctionBreakpoints/
// SetExceptionBreakpoints when the adapter supports them (spec §4.5 step
// 4).
func (c *Core) applyInitialBreakpoints(ctx context.Context, initial []InitialBreakpoint, exceptionFilters []string, functionBreakpoints []string) *Error {
	byPath := make(map[string][]InitialBreakpoint)
	var paths []string
	for _, bp := range initial {
		if _, seen := byPath[bp.Path]; !seen {
			paths = append(paths, bp.Path)
		}
		byPath[bp.Path] = append(byPath[bp.Path], bp)
	}
	sort.Strings(paths)

	for _, path := range paths {
		var registered []*breakpoints.Breakpoint
		for _, bp := range byPath[path] {
			stored, addErr := c.bps.Add(breakpoints.Breakpoint{Path: bp.Path, Line: bp.Line, Name: bp.Name})
			if addErr != nil {
				c.logger.Warn("engine: skipping duplicate initial breakpoint", "path", bp.Path, "line", bp.Line)
				continue
			}
			registered = append(registered, stored)
		}
		if len(registered) == 0 {
			continue
		}
		if err := c.resyncSource(ctx, path, registered); err != nil {
			return err
		}
	}

	c.mu.Lock()
	caps := c.capabilities
	c.mu.Unlock()

	if len(functionBreakpoints) > 0 && caps.SupportsFunctionBreakpoints {
		fnBps := make([]dap.FunctionBreakpoint, len(functionBreakpoints))
		for i, name := range functionBreakpoints {
			fnBps[i] = dap.FunctionBreakpoint{Name: name}
		}
		seq := c.nextSeq()
		req := &dap.SetFunctionBreakpointsRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
				Command:         "setFunctionBreakpoints",
			},
			Arguments: dap.SetFunctionBreakpointsArguments{Breakpoints: fnBps},
		}
		if _, err := c.sendAndAwait(ctx, seq, req); err != nil {
			c.logger.Warn("engine: setFunctionBreakpoints failed", "error", err)
		}
	}

	if len(exceptionFilters) > 0 && caps.ExceptionBreakpointFilters != nil {
		seq := c.nextSeq()
		req := &dap.SetExceptionBreakpointsRequest{
			Request: dap.Request{
				ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
				Command:         "setExceptionBreakpoints",
			},
			Arguments: dap.SetExceptionBreakpointsArguments{Filters: exceptionFilters},
		}
		if _, err := c.sendAndAwait(ctx, seq, req); err != nil {
			c.logger.Warn("engine: setExceptionBreakpoints failed", "error", err)
		}
	}

	return nil
}

// resyncSource sends SetBreakpoints for every breakpoint registered
// against path and resyncs the registry from the response.
func (c *Core) resyncSource(ctx context.Context, path string, requested []*breakpoints.Breakpoint) *Error {
	sourceBps := make([]dap.SourceBreakpoint, len(requested))
	for i, bp := range requested {
		sourceBps[i] = dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition}
	}

	seq := c.nextSeq()
	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "request"},
			Command:         "setBreakpoints",
		},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: path},
			Breakpoints: sourceBps,
		},
	}
	msg, err := c.sendAndAwait(ctx, seq, req)
	if err != nil {
		return err
	}
	resp, ok := msg.(*dap.SetBreakpointsResponse)
	if !ok {
		return newError(KindDecode, "setBreakpoints response had unexpected shape")
	}
	if mismatched := c.bps.Resync(path, requested, resp.Body.Breakpoints); mismatched {
		c.logger.Warn("engine: setBreakpoints count mismatch, breakpoints left unverified", "path", path)
	}
	return nil
}

// publishBare publishes a ProgramState carrying only the state tag and
// last-known thread, used for transitions that don't repopulate the
// stack/scope/variable snapshot (Initialising, Configuring, Running).
func (c *Core) publishBare(s State) {
	c.mu.Lock()
	thread := c.currentThread
	c.mu.Unlock()
	c.pub.Publish(ProgramState{State: s, CurrentThread: thread, Breakpoints: c.bps.List()})
}

