package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/activitymonitor/internal/config"
	"github.com/Iron-Ham/activitymonitor/internal/dependent"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and decode dependent activity tokens",
}

var tokenNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Issue a dependent token and print the message that records it",
	Long: `Issue a dependent token from a fresh monitor and print the log line the
originator writes for it.

Examples:
  actmon token new                    # token without topic
  actmon token new --topic shipping   # dependent activity takes this topic
  actmon token new --create           # log "created" instead of "launching"`,
	Args: cobra.NoArgs,
	RunE: runTokenNew,
}

var tokenParseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Decode a token, or a launch, create or start message",
	Long: `Decode a dependent token. The text may be a bare token, a message written
when the token was issued, or the first group of the dependent activity. A
token embedded in other text is found as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTokenParse,
}

var tokenStartCmd = &cobra.Command{
	Use:   "start <token>",
	Short: "Open the first group of a dependent activity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTokenStart,
}

var (
	tokenTopic  string
	tokenCreate bool
)

func init() {
	tokenNewCmd.Flags().StringVar(&tokenTopic, "topic", "", "topic for the dependent activity")
	tokenNewCmd.Flags().BoolVar(&tokenCreate, "create", false, "record the token as created rather than launched")
	tokenCmd.AddCommand(tokenNewCmd)
	tokenCmd.AddCommand(tokenParseCmd)
	tokenCmd.AddCommand(tokenStartCmd)
	rootCmd.AddCommand(tokenCmd)
}

// newMonitor builds a monitor from the loaded configuration that prints its
// activity to w.
func newMonitor(w io.Writer) (*monitor.Monitor, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	env, _, err := cfg.NewEnv(nil, nil)
	if err != nil {
		return nil, err
	}
	m := monitor.New(cfg.MonitorOptions(env)...)
	if _, err := m.RegisterClient(newConsoleClient(w, false)); err != nil {
		return nil, err
	}
	return m, nil
}

func runTokenNew(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	m, err := newMonitor(out)
	if err != nil {
		return err
	}

	var topic *string
	if cmd.Flags().Changed("topic") {
		topic = &tokenTopic
	}
	issue := dependent.Launch
	if tokenCreate {
		issue = dependent.Create
	}
	tok, err := issue(m, topic)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	p := newPalette(out)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "token:"), tok.String())
	return nil
}

func runTokenParse(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	out := cmd.OutOrStdout()
	p := newPalette(out)

	kind := "token"
	tok, launched, err := dependent.ParseLaunchOrCreateMessage(text)
	switch {
	case err == nil && launched:
		kind = "launch message"
	case err == nil:
		kind = "create message"
	default:
		if tok, err = dependent.ParseStartMessage(text); err == nil {
			kind = "start message"
		} else if tok, err = dependent.Parse(text); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "kind:      "), kind)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "originator:"), tok.OriginatorID)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "created:   "), tok.CreationTime)
	switch {
	case tok.Topic == nil:
		fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "topic:     "), p.paint(p.muted, "(none)"))
	default:
		fmt.Fprintf(out, "%s %q\n", p.paint(p.key, "topic:     "), *tok.Topic)
	}
	return nil
}

func runTokenStart(cmd *cobra.Command, args []string) error {
	tok, err := dependent.Parse(strings.Join(args, " "))
	if err != nil {
		return err
	}
	m, err := newMonitor(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	h, err := dependent.Start(m, tok)
	if err != nil {
		return fmt.Errorf("failed to start dependent activity: %w", err)
	}
	return h.Close()
}
