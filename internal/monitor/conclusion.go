package monitor

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Conclusion is one tagged line attached to a closing group.
type Conclusion struct {
	Tag  *tags.Set
	Text string
}

// String returns the conclusion text.
func (c Conclusion) String() string { return c.Text }

// normalizeConclusion turns the value given to CloseGroup into an ordered
// list. Accepted shapes are nil, string, Conclusion, []Conclusion, []string
// and anything cast or fmt can render as text.
func (m *Monitor) normalizeConclusion(v any) []Conclusion {
	user := m.env.Known.UserConclusion
	switch c := v.(type) {
	case nil:
		return nil
	case Conclusion:
		return []Conclusion{m.importConclusion(c)}
	case *Conclusion:
		if c == nil {
			return nil
		}
		return []Conclusion{m.importConclusion(*c)}
	case []Conclusion:
		out := make([]Conclusion, 0, len(c))
		for _, one := range c {
			out = append(out, m.importConclusion(one))
		}
		return out
	case []string:
		out := make([]Conclusion, 0, len(c))
		for _, s := range c {
			out = append(out, Conclusion{Tag: user, Text: s})
		}
		return out
	}
	text, err := cast.ToStringE(v)
	if err != nil {
		text = fmt.Sprint(v)
	}
	return []Conclusion{{Tag: user, Text: text}}
}

// importConclusion re-interns a conclusion tag in the monitor's registry and
// defaults a missing tag to c:User.
func (m *Monitor) importConclusion(c Conclusion) Conclusion {
	if c.Tag.IsEmpty() {
		c.Tag = m.env.Known.UserConclusion
		return c
	}
	c.Tag = m.env.Tags.Import(c.Tag)
	return c
}
