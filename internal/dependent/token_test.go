package dependent_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/activitymonitor/internal/dependent"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
	"github.com/Iron-Ham/activitymonitor/internal/testutil"
)

func ptr(s string) *string { return &s }

var (
	testID   = uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	testTime = logtime.Timestamp{Time: time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.UTC), Uniquifier: 3}
)

func TestToken_String(t *testing.T) {
	tok := dependent.New(testID, testTime, nil)
	want := "{0f8fad5b-d9cb-469f-a165-70867728950e} at 2024-03-09T14:05:07.123456789Z,3"
	if got := tok.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestToken_RoundTrip(t *testing.T) {
	topics := []*string{nil, ptr(""), ptr("x"), ptr("multi\nline")}
	stamps := []logtime.Timestamp{
		testTime,
		{Time: testTime.Time},
		{Time: time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), Uniquifier: 255},
	}

	for _, topic := range topics {
		for _, ts := range stamps {
			tok := dependent.New(uuid.New(), ts, topic)
			got, err := dependent.Parse(tok.String())
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tok.String(), err)
			}
			if got.OriginatorID != tok.OriginatorID {
				t.Errorf("OriginatorID = %v, want %v", got.OriginatorID, tok.OriginatorID)
			}
			if !got.CreationTime.Equal(tok.CreationTime) {
				t.Errorf("CreationTime = %v, want %v", got.CreationTime, tok.CreationTime)
			}
			if got.HasTopic() {
				t.Errorf("parsed token has topic %q, want none", *got.Topic)
			}
		}
	}
}

func TestParse_SurroundingText(t *testing.T) {
	tok := dependent.New(testID, testTime, nil)
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"bare", tok.String(), true},
		{"prefixed", "12:00 worker-3 " + tok.String(), true},
		{"suffixed", tok.String() + ". trailing", true},
		{"decoy brace first", "{not a guid} then " + tok.String(), true},
		{"guid without separator", "{" + testID.String() + "} on " + testTime.String(), false},
		{"bad time", "{" + testID.String() + "} at yesterday", false},
		{"truncated", tok.String()[:20], false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dependent.TryParse(tt.input)
			if ok != tt.ok {
				t.Fatalf("TryParse(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && (got.OriginatorID != testID || !got.CreationTime.Equal(testTime)) {
				t.Errorf("TryParse(%q) = %v, want %v", tt.input, got, tok)
			}
			_, err := dependent.Parse(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("Parse(%q) error = %v, want ok %v", tt.input, err, tt.ok)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	tokText := "{0f8fad5b-d9cb-469f-a165-70867728950e} at 2024-03-09T14:05:07.123456789Z,3"
	tests := []struct {
		name   string
		topic  *string
		launch string
		create string
	}{
		{
			name:   "no topic",
			launch: "Launching dependent activity under token " + tokText + ".",
			create: "Dependent token created as " + tokText + ".",
		},
		{
			name:   "empty topic",
			topic:  ptr(""),
			launch: "Launching dependent activity with empty topic under token " + tokText + ".",
			create: "Dependent token created with empty topic as " + tokText + ".",
		},
		{
			name:   "topic",
			topic:  ptr("nightly build"),
			launch: "Launching dependent activity with topic 'nightly build' under token " + tokText + ".",
			create: "Dependent token created with topic 'nightly build' as " + tokText + ".",
		},
		{
			name:   "tricky topic",
			topic:  ptr("it's under token {x} as\nwell"),
			launch: "Launching dependent activity with topic 'it's under token {x} as\nwell' under token " + tokText + ".",
			create: "Dependent token created with topic 'it's under token {x} as\nwell' as " + tokText + ".",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := dependent.New(testID, testTime, tt.topic)
			for _, c := range []struct {
				text     string
				want     string
				launched bool
			}{
				{dependent.LaunchMessage(tok), tt.launch, true},
				{dependent.CreateMessage(tok), tt.create, false},
			} {
				if c.text != c.want {
					t.Errorf("message = %q, want %q", c.text, c.want)
				}
				got, launched, err := dependent.ParseLaunchOrCreateMessage(c.text)
				if err != nil {
					t.Fatalf("ParseLaunchOrCreateMessage(%q) error = %v", c.text, err)
				}
				if launched != c.launched {
					t.Errorf("launched = %v, want %v", launched, c.launched)
				}
				if got.OriginatorID != testID || !got.CreationTime.Equal(testTime) {
					t.Errorf("token = %v, want %v", got, tok)
				}
				switch {
				case tt.topic == nil && got.Topic != nil:
					t.Errorf("Topic = %q, want nil", *got.Topic)
				case tt.topic != nil && (got.Topic == nil || *got.Topic != *tt.topic):
					t.Errorf("Topic = %v, want %q", got.Topic, *tt.topic)
				}
			}
		})
	}
}

func TestParseLaunchOrCreateMessage_Invalid(t *testing.T) {
	tokText := dependent.New(testID, testTime, nil).String()
	inputs := []string{
		"",
		"Launching something else " + tokText + ".",
		"Launching dependent activity under token " + tokText,
		"Launching dependent activity under token garbage.",
		"Dependent token created with topic 'x as " + tokText + ".",
		"Dependent token created sideways as " + tokText + ".",
	}
	for _, in := range inputs {
		if _, _, err := dependent.ParseLaunchOrCreateMessage(in); err == nil {
			t.Errorf("ParseLaunchOrCreateMessage(%q) error = nil, want error", in)
		}
	}
}

func TestStartMessage(t *testing.T) {
	tok := dependent.New(testID, testTime, ptr("ignored"))
	msg := dependent.StartMessage(tok)
	want := "Starting dependent activity issued by " + tok.String() + "."
	if msg != want {
		t.Errorf("StartMessage() = %q, want %q", msg, want)
	}
	got, err := dependent.ParseStartMessage(msg)
	if err != nil {
		t.Fatalf("ParseStartMessage() error = %v", err)
	}
	if got.OriginatorID != testID || !got.CreationTime.Equal(testTime) {
		t.Errorf("ParseStartMessage() = %v, want %v", got, tok)
	}
	if _, err := dependent.ParseStartMessage("Starting dependent activity issued by nobody."); err == nil {
		t.Error("ParseStartMessage() of garbage error = nil, want error")
	}
}

func TestNew_CopiesTopic(t *testing.T) {
	topic := "a"
	tok := dependent.New(testID, testTime, &topic)
	topic = "b"
	if *tok.Topic != "a" {
		t.Errorf("Topic = %q, want %q", *tok.Topic, "a")
	}
}

func TestLaunchAndStart(t *testing.T) {
	origin := monitor.New()
	originRec := testutil.NewRecorder()
	if _, err := origin.RegisterClient(originRec); err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	tok, err := dependent.Launch(origin, ptr("child"))
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if tok.OriginatorID != origin.UniqueID() {
		t.Errorf("OriginatorID = %v, want %v", tok.OriginatorID, origin.UniqueID())
	}
	logs := originRec.Logs()
	if len(logs) != 1 {
		t.Fatalf("origin logs = %d, want 1", len(logs))
	}
	if logs[0].Text != dependent.LaunchMessage(tok) {
		t.Errorf("Text = %q, want %q", logs[0].Text, dependent.LaunchMessage(tok))
	}
	if !logs[0].Time.Equal(tok.CreationTime) {
		t.Errorf("log time = %v, want token time %v", logs[0].Time, tok.CreationTime)
	}
	if !logs[0].Tags.Contains(monitor.TagCreateDependentActivity) {
		t.Errorf("Tags = %v, want %s", logs[0].Tags, monitor.TagCreateDependentActivity)
	}
	if logs[0].Level != logfilter.Info {
		t.Errorf("Level = %v, want unfiltered Info", logs[0].Level)
	}

	parsed, launched, err := dependent.ParseLaunchOrCreateMessage(logs[0].Text)
	if err != nil || !launched {
		t.Fatalf("ParseLaunchOrCreateMessage() = %v, %v, %v", parsed, launched, err)
	}

	child := monitor.New()
	childRec := testutil.NewRecorder()
	if _, err := child.RegisterClient(childRec); err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	h, err := dependent.Start(child, parsed)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if child.Topic() != "child" {
		t.Errorf("child Topic() = %q, want %q", child.Topic(), "child")
	}
	g := h.Group()
	if g == nil || !strings.HasPrefix(g.Text, "Starting dependent activity issued by ") {
		t.Fatalf("group = %v, want start group", g)
	}
	if !g.Tags.Contains(monitor.TagStartDependentActivity) {
		t.Errorf("group Tags = %v, want %s", g.Tags, monitor.TagStartDependentActivity)
	}
	back, err := dependent.ParseStartMessage(g.Text)
	if err != nil {
		t.Fatalf("ParseStartMessage() error = %v", err)
	}
	if back.OriginatorID != origin.UniqueID() || !back.CreationTime.Equal(tok.CreationTime) {
		t.Errorf("ParseStartMessage() = %v, want %v", back, tok)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if child.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", child.Depth())
	}
}

func TestCreateWithoutTopicKeepsChildTopic(t *testing.T) {
	origin := monitor.New()
	tok, err := dependent.Create(origin, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	child := monitor.New(monitor.WithTopic("own"))
	if _, err := dependent.Start(child, tok); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if child.Topic() != "own" {
		t.Errorf("Topic() = %q, want %q", child.Topic(), "own")
	}
}

type topicSyncer struct {
	monitor.NopClient
	topic *string
}

func (s *topicSyncer) TakeSync() (monitor.SyncRequest, bool) {
	if s.topic == nil {
		return monitor.SyncRequest{}, false
	}
	req := monitor.SyncRequest{Topic: s.topic}
	s.topic = nil
	return req, true
}

func TestLaunch_TokenTimeFollowsPendingTopic(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	origin := monitor.New(monitor.WithEnv(monitor.NewEnv(monitor.WithClock(testutil.FixedClock(now)))))
	rec := testutil.NewRecorder()
	if _, err := origin.RegisterClient(rec); err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	if _, err := origin.RegisterClient(&topicSyncer{topic: ptr("pulled")}); err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	origin.SignalChange()

	tok, err := dependent.Launch(origin, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	logs := rec.Logs()
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[0].Text != "Topic: pulled" {
		t.Errorf("logs[0].Text = %q, want %q", logs[0].Text, "Topic: pulled")
	}
	if !logs[1].Time.Equal(tok.CreationTime) {
		t.Errorf("launch time = %v, want token time %v", logs[1].Time, tok.CreationTime)
	}
	if logs[1].Text != dependent.LaunchMessage(tok) {
		t.Errorf("Text = %q, want %q", logs[1].Text, dependent.LaunchMessage(tok))
	}
	if !logs[0].Time.Before(tok.CreationTime) {
		t.Errorf("token time = %v, want after topic entry %v", tok.CreationTime, logs[0].Time)
	}
}
