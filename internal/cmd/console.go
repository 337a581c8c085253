package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// consoleClient prints a monitor's activity as an indented tree.
type consoleClient struct {
	mu         sync.Mutex
	w          io.Writer
	p          palette
	timestamps bool
}

func newConsoleClient(w io.Writer, timestamps bool) *consoleClient {
	return &consoleClient{w: w, p: newPalette(w), timestamps: timestamps}
}

func (c *consoleClient) printf(t logtime.Timestamp, depth int, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sb strings.Builder
	if c.timestamps && !t.IsZero() {
		sb.WriteString(c.p.paint(c.p.muted, t.String()))
		sb.WriteByte(' ')
	}
	sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&sb, format, args...)
	sb.WriteByte('\n')
	_, _ = io.WriteString(c.w, sb.String())
}

func (c *consoleClient) tags(s *tags.Set) string {
	if s == nil || s.IsEmpty() {
		return ""
	}
	return " " + c.p.paint(c.p.tag, "["+s.String()+"]")
}

func (c *consoleClient) OnUnfilteredLog(d *monitor.LogData) {
	text := d.Text
	if d.Err != nil {
		text += ": " + c.p.paint(c.p.failed, d.Err.Error())
	}
	c.printf(d.Time, d.Depth, "%s %s%s", c.p.level(d.Level), text, c.tags(d.Tags))
}

func (c *consoleClient) OnOpenGroup(g *monitor.Group) {
	text := g.Text
	if g.Err != nil {
		text += ": " + c.p.paint(c.p.failed, g.Err.Error())
	}
	c.printf(g.OpenTime, g.Depth()-1, "%s %s %s%s", c.p.paint(c.p.header, "+"), c.p.level(g.Level), text, c.tags(g.Tags))
}

func (c *consoleClient) OnGroupClosing(*monitor.Group, *[]monitor.Conclusion) {}

func (c *consoleClient) OnGroupClosed(g *monitor.Group, conclusions []monitor.Conclusion) {
	texts := make([]string, 0, len(conclusions))
	for _, cc := range conclusions {
		if cc.Text != "" {
			texts = append(texts, cc.Text)
		}
	}
	line := c.p.paint(c.p.header, "-") + " " + g.Text
	if len(texts) > 0 {
		line += " " + c.p.paint(c.p.ok, "=> "+strings.Join(texts, "; "))
	}
	c.printf(g.CloseTime, g.Depth()-1, "%s", line)
}

func (c *consoleClient) OnTopicChanged(topic string, _ monitor.Location) {
	c.printf(logtime.Timestamp{}, 0, "%s %q", c.p.paint(c.p.key, "topic:"), topic)
}

func (c *consoleClient) OnAutoTagsChanged(t *tags.Set) {
	c.printf(logtime.Timestamp{}, 0, "%s %s", c.p.paint(c.p.key, "auto tags:"), t.String())
}
