package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/activitymonitor/internal/bridge"
	"github.com/Iron-Ham/activitymonitor/internal/config"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

// serveQueueSize is used when the configuration leaves queuing off: several
// connections feed one monitor, which only its owner goroutine may touch.
const serveQueueSize = 1024

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Print activity bridged from other processes",
	Long: `Listen for stream bridges and print the activity they forward.

Every connection is one source; groups it leaves open are closed when it
disconnects. When sources.watch is set the overrides file is reloaded as it
changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveListen     string
	serveTimestamps bool
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (default bridge.listen)")
	serveCmd.Flags().BoolVar(&serveTimestamps, "timestamps", true, "print entry timestamps")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr := serveListen
	if addr == "" {
		addr = cfg.Bridge.Listen
	}
	if addr == "" {
		return errors.New("no listen address: set --listen or bridge.listen")
	}
	if cfg.Bridge.QueueSize <= 0 {
		cfg.Bridge.QueueSize = serveQueueSize
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	bus := event.NewBus(logger)
	env, _, err := cfg.NewEnv(bus, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := newPalette(out)
	bus.Subscribe(event.TypeOverridesReloaded, func(e event.Event) {
		r := e.(event.OverridesReloadedEvent)
		if r.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", p.paint(p.failed, "overrides:"), r.Err)
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %d rules from %s\n", p.paint(p.muted, "overrides:"), r.Rules, r.Path)
	})

	if cfg.Sources.OverridesFile != "" {
		if cfg.Sources.Watch {
			w, err := config.WatchOverrides(afs, cfg, env.Sources, bus, logger)
			if err != nil {
				return err
			}
			defer w.Stop()
			if err := w.Reload(); err != nil {
				return err
			}
		} else {
			o, err := config.LoadOverrides(afs, cfg.Sources.OverridesFile)
			if err != nil {
				return err
			}
			if _, err := config.ApplyRules(env.Sources, cfg.Sources.Rules, o.Rules); err != nil {
				return err
			}
		}
	}

	console := monitor.New(cfg.MonitorOptions(env)...)
	if _, err := console.RegisterClient(newConsoleClient(out, serveTimestamps)); err != nil {
		return err
	}
	target := bridge.NewTarget(console, cfg.TargetOptions(bus, logger)...)
	defer func() { _ = target.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", p.paint(p.header, "listening on"), ln.Addr())

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = target.Run(ctx)
	}()

	err = bridge.ServeListener(ctx, ln, target, cfg.StreamOptions(logger)...)
	stop()
	<-runDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
