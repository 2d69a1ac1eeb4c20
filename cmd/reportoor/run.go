package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/reportoor/pkg/bridge"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/reporter"
	"github.com/ethpandaops/reportoor/pkg/sink"
)

var inputFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume a runner notification stream and persist results",
	Long: `Read newline-delimited JSON notifications from a test runner, drive the
reporting pipeline, and persist results to the output directory. Reads from
stdin unless --input is given.`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&inputFile, "input", "",
		"Path to a notification stream file (defaults to stdin)")
}

// notification is one line of the runner's NDJSON stream.
type notification struct {
	Kind    string           `json:"kind"`
	Name    string           `json:"name,omitempty"`
	Title   string           `json:"title,omitempty"`
	ID      string           `json:"id,omitempty"`
	Status  string           `json:"status,omitempty"`
	Error   string           `json:"error,omitempty"`
	Text    string           `json:"text,omitempty"`
	Command string           `json:"command,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Event   *events.Envelope `json:"event,omitempty"`
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	input := os.Stdin
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("opening input file: %w", err)
		}
		defer func() { _ = f.Close() }()

		input = f
	}

	snk := sink.NewFileSink(log, &sink.Config{OutputDir: cfg.Output.Dir})
	if err := snk.Start(ctx); err != nil {
		return fmt.Errorf("starting sink: %w", err)
	}

	rep := reporter.NewReporter(log, &reporter.Config{
		Labels: cfg.Global.Labels,
	}, snk)
	if err := rep.Start(ctx); err != nil {
		return fmt.Errorf("starting reporter: %w", err)
	}

	brd := bridge.NewBridge(log, cfg.Driver.ScreenshotCommand, rep)
	console := rep.InstallOutputTap(os.Stdout)

	if err := consumeStream(ctx, input, rep, brd, console); err != nil {
		return err
	}

	// Stop runs the process-exit fallback before the sink closes.
	if err := rep.Stop(); err != nil {
		return fmt.Errorf("stopping reporter: %w", err)
	}

	if err := snk.Stop(); err != nil {
		return fmt.Errorf("stopping sink: %w", err)
	}

	return postRun(ctx, cfg)
}

// consumeStream drives the reporter from the notification stream until EOF
// or context cancellation. Malformed lines are skipped so one bad
// notification does not lose the rest of the run's evidence.
func consumeStream(
	ctx context.Context,
	input io.Reader,
	rep reporter.Reporter,
	brd *bridge.Bridge,
	console io.Writer,
) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			log.Info("Stream consumption cancelled")

			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var n notification
		if err := json.Unmarshal(line, &n); err != nil {
			log.WithError(err).Warn("Skipping malformed notification")

			continue
		}

		dispatch(&n, rep, brd, console)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading notification stream: %w", err)
	}

	return nil
}

// dispatch routes one notification to the reporting pipeline.
func dispatch(n *notification, rep reporter.Reporter, brd *bridge.Bridge, console io.Writer) {
	switch n.Kind {
	case "suite-start":
		rep.OnSuiteStart(n.Name)
	case "suite-end":
		rep.OnSuiteEnd(n.Name)
	case "hook-start":
		rep.OnHookStart(n.Title)
	case "hook-end":
		var hookErr error
		if n.Error != "" {
			hookErr = fmt.Errorf("%s", n.Error)
		}

		rep.OnHookEnd(n.Title, hookErr)
	case "result-start":
		rep.OnResultStart(n.ID, n.Name)
	case "result-end":
		rep.OnResultEnd(n.ID, events.Status(n.Status))
	case "event":
		if n.Event == nil {
			log.Warn("Skipping event notification without payload")

			return
		}

		ev, err := events.Decode(*n.Event)
		if err != nil {
			log.WithError(err).Warn("Skipping undecodable event")

			return
		}

		rep.OnEvent(ev)
	case "console":
		if _, err := io.WriteString(console, n.Text); err != nil {
			log.WithError(err).Warn("Writing console output")
		}
	case "command-result":
		brd.OnCommandResult(n.Command, n.Result)
	default:
		log.WithField("kind", n.Kind).Debug("Ignoring unknown notification kind")
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
