package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/activitymonitor/internal/bridge"
	"github.com/Iron-Ham/activitymonitor/internal/config"
	"github.com/Iron-Ham/activitymonitor/internal/dependent"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a sample activity through a bridge and print it",
	Long: `Run a sample order-processing activity in a worker monitor and bridge it
to a console monitor. A dependent shipping activity is launched with a token
and runs in its own monitor, bridged to the same console.

With --stream the bridge goes through the wire format, compressed when the
configuration enables it, instead of calling the target directly.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var (
	demoStream     bool
	demoTimestamps bool
)

func init() {
	demoCmd.Flags().BoolVar(&demoStream, "stream", false, "bridge through the wire format")
	demoCmd.Flags().BoolVar(&demoTimestamps, "timestamps", false, "print entry timestamps")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	bus := event.NewBus(logger)
	env, collector, err := cfg.NewEnv(bus, logger)
	if err != nil {
		return err
	}

	console := monitor.New(cfg.MonitorOptions(env)...)
	if _, err := console.RegisterClient(newConsoleClient(out, demoTimestamps)); err != nil {
		return err
	}
	target := bridge.NewTarget(console, cfg.TargetOptions(bus, logger)...)
	defer func() { _ = target.Close() }()

	var endpoint bridge.Endpoint = target
	var finish func() error
	if demoStream {
		endpoint, finish, err = streamTo(cmd.Context(), target, cfg)
		if err != nil {
			return err
		}
	}

	if err := runScenario(env, endpoint, cfg.BridgeOptions(logger)); err != nil {
		return err
	}

	if finish != nil {
		if err := finish(); err != nil {
			return err
		}
	}
	if cfg.Bridge.QueueSize > 0 {
		if _, err := target.Drain(); err != nil {
			return err
		}
	}

	if n := collector.Count(); n > 0 {
		p := newPalette(out)
		fmt.Fprintln(out, p.paint(p.failed, fmt.Sprintf("%d critical errors", n)))
		for _, e := range collector.Entries() {
			fmt.Fprintf(out, "  #%d %s: %v\n", e.Sequence, e.Comment, e.Err)
		}
	}
	return nil
}

// streamTo returns a StreamTarget whose frames are served into target by a
// background Serve, with the target's filter, topic and auto tags flowing
// back on a second pipe. finish ends the stream and waits for Serve to
// apply everything.
func streamTo(ctx context.Context, target *bridge.Target, cfg *config.Config) (bridge.Endpoint, func() error, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	streamOpts := cfg.StreamOptions(nil)
	pr, pw := io.Pipe()
	cr, cw := io.Pipe()
	st, err := bridge.NewStreamTarget(pw, append(slices.Clip(streamOpts), bridge.WithStaticFilter(target.FinalFilter()))...)
	if err != nil {
		return nil, nil, err
	}
	serveOpts := append(slices.Clip(streamOpts), bridge.WithControl(cw))

	control := make(chan error, 1)
	go func() {
		err := st.ReadControl(ctx, cr)
		_ = cr.CloseWithError(err)
		control <- err
	}()

	done := make(chan error, 1)
	go func() {
		err := bridge.Serve(ctx, pr, target, serveOpts...)
		_ = pr.CloseWithError(err)
		_ = cw.Close()
		done <- err
	}()

	finish := func() error {
		cerr := st.Close()
		_ = pw.Close()
		return errors.Join(cerr, <-done, <-control)
	}
	return st, finish, nil
}

// runScenario logs a small order workflow with a dependent activity.
func runScenario(env *monitor.Env, endpoint bridge.Endpoint, opts []bridge.Option) error {
	worker := monitor.New(monitor.WithEnv(env), monitor.WithTopic("orders"))
	wb := bridge.New(endpoint, opts...)
	if _, err := worker.RegisterClient(wb); err != nil {
		return fmt.Errorf("failed to bridge worker: %w", err)
	}
	defer worker.UnregisterClient(wb)

	order, err := worker.OpenGroup(logfilter.Info, "Processing order 42",
		monitor.WithTags(env.Tags.Parse("order")),
		monitor.WithConclude(func() string { return "3 items" }))
	if err != nil {
		return err
	}
	_ = worker.Info("Validating payment")
	_ = worker.Debug("Card type: visa")

	topic := "shipping"
	tok, err := dependent.Launch(worker, &topic)
	if err != nil {
		return err
	}

	shipper := monitor.New(monitor.WithEnv(env))
	sb := bridge.New(endpoint, opts...)
	if _, err := shipper.RegisterClient(sb); err != nil {
		return fmt.Errorf("failed to bridge shipper: %w", err)
	}
	ship, err := dependent.Start(shipper, tok)
	if err != nil {
		return err
	}
	_ = shipper.Info("Label printed")
	_ = shipper.Warn("Carrier pickup delayed", monitor.WithTags(env.Tags.Parse("carrier")))
	_ = ship.Conclude("shipped")
	shipper.UnregisterClient(sb)

	_ = worker.Error("Receipt email failed", monitor.WithErr(errors.New("smtp: connection refused")))
	return order.Conclude("completed with warnings")
}
