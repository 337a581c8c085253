package dependent

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

// Fixed message texts. The token always comes last so that a topic holding
// arbitrary text cannot hide it.
const (
	launchPrefix = "Launching dependent activity"
	launchMarker = " under token "
	createPrefix = "Dependent token created"
	createMarker = " as "
	startPrefix  = "Starting dependent activity issued by "

	withTopic  = " with topic '"
	emptyTopic = " with empty topic"
)

// LaunchMessage is logged by the originator when it starts the dependent
// activity itself.
func LaunchMessage(t Token) string {
	return launchPrefix + topicPart(t) + launchMarker + t.String() + "."
}

// CreateMessage is logged by the originator when the token is handed over
// for a dependent activity started elsewhere.
func CreateMessage(t Token) string {
	return createPrefix + topicPart(t) + createMarker + t.String() + "."
}

// StartMessage is the text of the first group of the dependent activity.
func StartMessage(t Token) string {
	return startPrefix + t.String() + "."
}

func topicPart(t Token) string {
	switch {
	case t.Topic == nil:
		return ""
	case *t.Topic == "":
		return emptyTopic
	default:
		return withTopic + *t.Topic + "'"
	}
}

// ParseLaunchOrCreateMessage parses a message built by LaunchMessage or
// CreateMessage, topic included. launched reports which one it was.
func ParseLaunchOrCreateMessage(s string) (tok Token, launched bool, err error) {
	var prefix, marker string
	switch {
	case strings.HasPrefix(s, launchPrefix):
		prefix, marker, launched = launchPrefix, launchMarker, true
	case strings.HasPrefix(s, createPrefix):
		prefix, marker = createPrefix, createMarker
	default:
		return Token{}, false, fmt.Errorf("not a dependent token message: %q", s)
	}
	body, ok := strings.CutSuffix(s, ".")
	if !ok {
		return Token{}, false, fmt.Errorf("missing final period: %q", s)
	}
	idx := strings.LastIndex(body, marker)
	if idx < len(prefix) {
		return Token{}, false, fmt.Errorf("missing token: %q", s)
	}
	tok, err = parseExact(body[idx+len(marker):])
	if err != nil {
		return Token{}, false, err
	}

	switch middle := body[len(prefix):idx]; {
	case middle == "":
	case middle == emptyTopic:
		empty := ""
		tok.Topic = &empty
	case strings.HasPrefix(middle, withTopic) && strings.HasSuffix(middle, "'") && len(middle) > len(withTopic):
		topic := middle[len(withTopic) : len(middle)-1]
		tok.Topic = &topic
	default:
		return Token{}, false, fmt.Errorf("malformed topic in %q", s)
	}
	return tok, launched, nil
}

// ParseStartMessage parses a message built by StartMessage.
func ParseStartMessage(s string) (Token, error) {
	rest, ok := strings.CutPrefix(s, startPrefix)
	if !ok {
		return Token{}, fmt.Errorf("not a dependent start message: %q", s)
	}
	rest, ok = strings.CutSuffix(rest, ".")
	if !ok {
		return Token{}, fmt.Errorf("missing final period: %q", s)
	}
	return parseExact(rest)
}

// parseExact parses s when it is exactly one token.
func parseExact(s string) (Token, error) {
	if !strings.HasPrefix(s, "{") {
		return Token{}, fmt.Errorf("invalid dependent token %q", s)
	}
	tok, end, ok := parseAt(s, 0)
	if !ok || end != len(s) {
		return Token{}, fmt.Errorf("invalid dependent token %q", s)
	}
	return tok, nil
}

// Launch logs the launch of a dependent activity on m and returns its token,
// stamped with the time of that log entry.
func Launch(m *monitor.Monitor, topic *string) (Token, error) {
	return issue(m, topic, LaunchMessage)
}

// Create logs the creation of a token for a dependent activity started
// elsewhere and returns it.
func Create(m *monitor.Monitor, topic *string) (Token, error) {
	return issue(m, topic, CreateMessage)
}

func issue(m *monitor.Monitor, topic *string, message func(Token) string) (Token, error) {
	var tok Token
	_, err := m.UnfilteredLogStamped(logfilter.Info, m.Env().Known.CreateDependentActivity, func(t logtime.Timestamp) string {
		tok = New(m.UniqueID(), t, topic)
		return message(tok)
	})
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Start begins the dependent activity on m: it takes the token's topic, if
// any, and opens a group quoting the token. Closing the group ends it.
func Start(m *monitor.Monitor, t Token) (*monitor.GroupHandle, error) {
	if t.Topic != nil {
		if err := m.SetTopic(*t.Topic); err != nil {
			return nil, err
		}
	}
	return m.UnfilteredOpenGroup(&monitor.GroupData{
		Level: logfilter.Info,
		Text:  StartMessage(t),
		Tags:  m.Env().Known.StartDependentActivity,
	})
}
