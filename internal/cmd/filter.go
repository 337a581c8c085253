package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Parse and combine log filters",
	Long: `Parse and combine log filters.

A filter is a preset name or "{Line,Group}" where each axis is one of
Undefined, Debug, Trace, Info, Warn, Error, Fatal or Off.`,
}

var filterParseCmd = &cobra.Command{
	Use:   "parse <filter>",
	Short: "Show the axes and packed form of a filter",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilterParse,
}

var filterCombineCmd = &cobra.Command{
	Use:   "combine <filter> <filter>...",
	Short: "Combine filters the way a monitor combines its clients' filters",
	Long: `Combine filters axis by axis: the most verbose defined level wins and
Undefined only remains when every input is Undefined on that axis.

With --default the remaining Undefined axes are then taken from the given
filter, the way a monitor resolves its actual filter against the process
default.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilterCombine,
}

var filterPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the preset filters",
	Args:  cobra.NoArgs,
	RunE:  runFilterPresets,
}

var filterDefault string

func init() {
	filterCombineCmd.Flags().StringVar(&filterDefault, "default", "", "filter resolving Undefined axes of the result")
	filterCmd.AddCommand(filterParseCmd)
	filterCmd.AddCommand(filterCombineCmd)
	filterCmd.AddCommand(filterPresetsCmd)
	rootCmd.AddCommand(filterCmd)
}

func runFilterParse(cmd *cobra.Command, args []string) error {
	f, err := logfilter.Parse(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	p := newPalette(out)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "filter:"), f)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "line:  "), f.Line)
	fmt.Fprintf(out, "%s %s\n", p.paint(p.key, "group: "), f.Group)
	fmt.Fprintf(out, "%s 0x%04x\n", p.paint(p.key, "packed:"), f.Pack())
	return nil
}

func runFilterCombine(cmd *cobra.Command, args []string) error {
	result := logfilter.UndefinedFilter
	for _, a := range args {
		f, err := logfilter.Parse(a)
		if err != nil {
			return err
		}
		result = result.Combine(f)
	}
	if filterDefault != "" {
		def, err := logfilter.Parse(filterDefault)
		if err != nil {
			return fmt.Errorf("--default: %w", err)
		}
		result = result.CombineUndefinedOnly(def)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

func runFilterPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p := newPalette(out)
	names := logfilter.PresetNames()
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for _, n := range names {
		f, _ := logfilter.Parse(n)
		pad := strings.Repeat(" ", width-len(n))
		fmt.Fprintf(out, "%s%s  {%s,%s}\n", p.paint(p.key, n), pad, f.Line, f.Group)
	}
	return nil
}
