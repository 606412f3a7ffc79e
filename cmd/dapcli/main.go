// Command dapcli is a cobra-based manual driver over internal/engine's
// command interface, for exercising a real adapter by hand (e.g.
// `dlv dap --listen=127.0.0.1:4711`). It is not a front end in the sense
// spec §1 excludes (no terminal UI, no source viewer) — just flags and
// stdin lines wired to Core's methods, grounded on qingjiuzys-shode's
// cmd/shode + pkg/cli cobra wiring (cmd/shode/commands/debug_adapter.go).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dapclient/core/internal/config"
	"github.com/dapclient/core/internal/engine"
	"github.com/dapclient/core/internal/persist"
	"github.com/dapclient/core/internal/transport"
)

// parseLaunchArgs decodes the --launch-args flag into the map forwarded
// as the Launch request's arguments (spec §6: "an opaque Launch/Attach
// payload"); the engine sets its "stopOnEntry" key before sending.
func parseLaunchArgs(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dapcli",
		Short:   "Manual driver for the DAP debugger core",
		Version: "0.1.0",
	}
	cmd.AddCommand(newRunCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	var (
		network      string
		address      string
		language     string
		stopOnEntry  bool
		launchArgs   string
		breakpoints  string
		configDir    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to an adapter, start a session, and drive it interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), runOptions{
				network:         network,
				address:         address,
				language:        language,
				stopOnEntry:     stopOnEntry,
				launchArgsJSON:  launchArgs,
				breakpointsPath: breakpoints,
				configDir:       configDir,
			})
		},
	}

	cmd.Flags().StringVar(&network, "network", "tcp", "dial network (tcp, unix)")
	cmd.Flags().StringVar(&address, "address", "", "adapter address (overrides config file)")
	cmd.Flags().StringVar(&language, "language", "generic", "language identifier selecting launch defaults")
	cmd.Flags().BoolVar(&stopOnEntry, "stop-on-entry", false, "request stopOnEntry from the adapter")
	cmd.Flags().StringVar(&launchArgs, "launch-args", "{}", "JSON object forwarded as the Launch request arguments (its stopOnEntry key is set by the engine)")
	cmd.Flags().StringVar(&breakpoints, "breakpoints", "", "path to a persisted breakpoint document (spec §6 schema)")
	cmd.Flags().StringVar(&configDir, "config-dir", ".", "directory holding .dapclient.toml")

	return cmd
}

type runOptions struct {
	network         string
	address         string
	language        string
	stopOnEntry     bool
	launchArgsJSON  string
	breakpointsPath string
	configDir       string
}

func runSession(ctx context.Context, opts runOptions) error {
	logger := slog.Default()

	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return fmt.Errorf("dapcli: loading config: %w", err)
	}
	if opts.address != "" {
		cfg.Address = opts.address
	}
	if opts.network != "" {
		cfg.Network = opts.network
	}

	conn, err := dialWithTimeout(cfg)
	if err != nil {
		return fmt.Errorf("dapcli: connect: %w", err)
	}

	core := engine.New(conn, cfg, logger)

	var initial []persist.InitialBreakpoint
	if opts.breakpointsPath != "" {
		f, openErr := os.Open(opts.breakpointsPath)
		if openErr != nil {
			logger.Warn("dapcli: could not open breakpoint document, starting with none", "path", opts.breakpointsPath, "error", openErr)
		} else {
			initial = persist.Parse(f, logger)
			f.Close()
		}
	}
	var engineBps []engine.InitialBreakpoint
	for _, bp := range initial {
		engineBps = append(engineBps, engine.NewInitialBreakpoint(bp.Path, bp.Line, bp.Name))
	}

	launchArgs, parseErr := parseLaunchArgs(opts.launchArgsJSON)
	if parseErr != nil {
		return fmt.Errorf("dapcli: parsing --launch-args: %w", parseErr)
	}

	startCtx, cancelStart := context.WithTimeout(ctx, cfg.Timeouts.Initialize())
	defer cancelStart()
	startErr := core.Start(startCtx, engine.StartConfig{
		LaunchArgs:         launchArgs,
		Language:           opts.language,
		StopOnEntry:        opts.stopOnEntry,
		InitialBreakpoints: engineBps,
	})
	if startErr != nil {
		return fmt.Errorf("dapcli: start session: %w", startErr)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subID, states := core.Subscribe()
	defer core.Unsubscribe(subID)
	go printStates(states)

	fmt.Println("dapcli: session started; type 'help' for commands")
	return interactiveLoop(sigCtx, core, cfg.Timeouts.Command())
}

// dialWithTimeout dials the configured adapter address, enforcing
// cfg.Timeouts.Connect() since transport.Dial itself takes no deadline
// (spec §5: "every command exposes an optional deadline" — dial is the one
// connection-lifecycle step outside the command interface that still
// needs one).
func dialWithTimeout(cfg *config.Config) (transport.Conn, error) {
	type result struct {
		conn transport.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := transport.Dial(cfg.Network, cfg.Address, cfg.MaxMessageSize)
		done <- result{conn, err}
	}()
	select {
	case r := <-done:
		return r.conn, r.err
	case <-time.After(cfg.Timeouts.Connect()):
		return nil, fmt.Errorf("dial %s %s: timed out after %s", cfg.Network, cfg.Address, cfg.Timeouts.Connect())
	}
}

func printStates(states <-chan engine.ProgramState) {
	for state := range states {
		fmt.Printf("[state] %s (thread=%d frame=%d)\n", state.State, state.CurrentThread, state.CurrentFrame)
		for _, frame := range state.Stack {
			fmt.Printf("  #%d %s %s:%d\n", frame.Id, frame.Name, frame.Source.Path, frame.Line)
		}
	}
}

func interactiveLoop(ctx context.Context, core *engine.Core, commandTimeout time.Duration) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			_ = core.Shutdown(context.Background(), true)
			return nil
		default:
		}

		if !scanner.Scan() {
			_ = core.Shutdown(context.Background(), true)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmdName := fields[0]
		cmdArgs := fields[1:]

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err := dispatchCommand(cmdCtx, core, cmdName, cmdArgs)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if cmdName == "quit" || cmdName == "exit" {
			return nil
		}
	}
}

// dispatchCommand runs one interactive command. engine.Core's methods
// return *engine.Error (nil on success); it is unwrapped into a plain
// error here rather than returned directly, since a nil *engine.Error
// boxed straight into an error interface value is not itself nil.
func dispatchCommand(ctx context.Context, core *engine.Core, name string, args []string) error {
	switch name {
	case "help":
		printHelp()
		return nil
	case "continue", "c":
		return errOrNil(core.Continue(ctx))
	case "next", "step", "n":
		return errOrNil(core.StepOver(ctx))
	case "stepin", "si":
		return errOrNil(core.StepIn(ctx))
	case "stepout", "so":
		return errOrNil(core.StepOut(ctx))
	case "pause":
		return errOrNil(core.Pause(ctx))
	case "eval", "evaluate":
		if len(args) < 2 {
			return fmt.Errorf("usage: eval <frameId> <expression...>")
		}
		frameID, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return fmt.Errorf("invalid frame id %q: %w", args[0], convErr)
		}
		expr := strings.Join(args[1:], " ")
		result, evalErr := core.Evaluate(ctx, expr, frameID, "repl")
		if evalErr != nil {
			return evalErr
		}
		fmt.Printf("%s\n", result.Result)
		return nil
	case "scope":
		if len(args) != 1 {
			return fmt.Errorf("usage: scope <frameId>")
		}
		frameID, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return fmt.Errorf("invalid frame id %q: %w", args[0], convErr)
		}
		return errOrNil(core.ChangeScope(ctx, frameID))
	case "break", "bp":
		if len(args) < 2 {
			return fmt.Errorf("usage: break <path> <line> [condition]")
		}
		line, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid line %q: %w", args[1], convErr)
		}
		condition := ""
		if len(args) > 2 {
			condition = strings.Join(args[2:], " ")
		}
		bp, addErr := core.AddBreakpoint(ctx, args[0], line, condition)
		if addErr != nil {
			return addErr
		}
		fmt.Printf("added breakpoint %s (verified=%v)\n", bp.ID, bp.Verified)
		return nil
	case "unbreak", "rmbp":
		if len(args) != 1 {
			return fmt.Errorf("usage: unbreak <id>")
		}
		return errOrNil(core.RemoveBreakpoint(ctx, args[0]))
	case "quit", "exit":
		return errOrNil(core.Shutdown(ctx, true))
	default:
		return fmt.Errorf("unknown command %q; type 'help'", name)
	}
}

func errOrNil(err *engine.Error) error {
	if err == nil {
		return nil
	}
	return err
}

func printHelp() {
	fmt.Println(`commands:
  continue (c)                       resume the current thread
  next|step (n)                      step over
  stepin (si)                        step in
  stepout (so)                       step out
  pause                              request a pause
  eval <frameId> <expr...>           evaluate an expression in a frame
  scope <frameId>                    switch the active frame
  break <path> <line> [condition]    add a breakpoint
  unbreak <id>                       remove a breakpoint by internal id
  quit|exit                          disconnect and stop`)
}
