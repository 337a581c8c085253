// Package dependent implements dependent tokens: the causality link between
// an activity and the activities it spawns.
//
// The originating monitor logs the token's creation; the dependent activity,
// possibly in another process, opens its first group with a message that
// quotes the same token. Both texts are stable so the pair can be matched
// by grepping raw log streams.
package dependent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/activitymonitor/internal/logtime"
)

const (
	guidLen   = 36
	separator = " at "
)

// Token identifies the originator of a dependent activity and when the
// dependency was created. Topic is carried along for the dependent activity
// but is not part of the token's text.
type Token struct {
	OriginatorID uuid.UUID
	CreationTime logtime.Timestamp
	Topic        *string
}

// New creates a token. A nil topic means the dependent activity keeps its
// own topic.
func New(originator uuid.UUID, created logtime.Timestamp, topic *string) Token {
	if topic != nil {
		t := *topic
		topic = &t
	}
	return Token{OriginatorID: originator, CreationTime: created, Topic: topic}
}

// HasTopic reports whether the token carries a topic, possibly empty.
func (t Token) HasTopic() bool { return t.Topic != nil }

// String returns "{originator} at <time>".
func (t Token) String() string {
	return "{" + t.OriginatorID.String() + "}" + separator + t.CreationTime.String()
}

// Parse finds the first token in s. Text around it is ignored.
func Parse(s string) (Token, error) {
	tok, _, _, ok := scan(s)
	if !ok {
		return Token{}, fmt.Errorf("no dependent token in %q", s)
	}
	return tok, nil
}

// TryParse is Parse without the error.
func TryParse(s string) (Token, bool) {
	tok, _, _, ok := scan(s)
	return tok, ok
}

// scan returns the first token in s and its byte range.
func scan(s string) (tok Token, start, end int, ok bool) {
	for from := 0; from < len(s); {
		i := strings.IndexByte(s[from:], '{')
		if i < 0 {
			break
		}
		start = from + i
		from = start + 1
		if tok, end, ok = parseAt(s, start); ok {
			return tok, start, end, true
		}
	}
	return Token{}, 0, 0, false
}

// parseAt parses a token starting at the brace at s[i].
func parseAt(s string, i int) (Token, int, bool) {
	rb := i + 1 + guidLen
	if rb >= len(s) || s[rb] != '}' {
		return Token{}, 0, false
	}
	id, err := uuid.Parse(s[i+1 : rb])
	if err != nil {
		return Token{}, 0, false
	}
	rest := s[rb+1:]
	if !strings.HasPrefix(rest, separator) {
		return Token{}, 0, false
	}
	ts, n, ok := logtime.ParsePrefix(rest[len(separator):])
	if !ok {
		return Token{}, 0, false
	}
	end := rb + 1 + len(separator) + n
	return Token{OriginatorID: id, CreationTime: ts}, end, true
}
