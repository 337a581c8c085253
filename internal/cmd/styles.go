package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
)

// colorEnabled reports whether output to w should be colored: only when w
// is a terminal and neither --no-color nor NO_COLOR is set.
func colorEnabled(w io.Writer) bool {
	if viper.GetBool("no_color") || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// palette holds the styles used by the commands. With color disabled every
// style renders its text unchanged.
type palette struct {
	color bool

	header lipgloss.Style
	key    lipgloss.Style
	muted  lipgloss.Style
	tag    lipgloss.Style
	ok     lipgloss.Style
	failed lipgloss.Style
	levels map[logfilter.LogLevel]lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		color:  colorEnabled(w),
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA")),
		key:    r.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		tag:    r.NewStyle().Foreground(lipgloss.Color("#2DD4BF")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		failed: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#F87171")),
		levels: map[logfilter.LogLevel]lipgloss.Style{
			logfilter.Debug: r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
			logfilter.Trace: r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
			logfilter.Info:  r.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
			logfilter.Warn:  r.NewStyle().Foreground(lipgloss.Color("#FBBF24")),
			logfilter.Error: r.NewStyle().Foreground(lipgloss.Color("#F87171")),
			logfilter.Fatal: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
		},
	}
}

func (p palette) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// level renders a level name padded to a fixed width.
func (p palette) level(l logfilter.LogLevel) string {
	name := l.Mask().String()
	for len(name) < 5 {
		name += " "
	}
	return p.paint(p.levels[l.Mask()], name)
}
