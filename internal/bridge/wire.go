package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc"
	"github.com/valyala/fastjson"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
)

// Frame keys. One frame is one JSON object on its own line.
const (
	keyKind        = "k"
	keySource      = "s"
	keyLevel       = "l"
	keyText        = "x"
	keyTags        = "g"
	keyTime        = "t"
	keyErr         = "e"
	keyFile        = "f"
	keyLine        = "n"
	keyConclusions = "c"
	keyFilter      = "m"
)

// StreamTarget is an Endpoint that writes messages as frames to a stream,
// typically a connection to another process running Serve. Its filter
// starts as the static one and follows the remote target once ReadControl
// receives control frames.
type StreamTarget struct {
	writeMu sync.Mutex
	w       io.Writer
	zw      *zstd.Encoder
	arena   fastjson.Arena
	buf     []byte

	// mu guards the fields below and is never held across a write.
	mu      sync.Mutex
	filter  logfilter.LogFilter
	bridges []*Bridge
	topic   *string
	tags    *string

	cfg    *streamConfig
	logger *logging.Logger
}

// NewStreamTarget creates a StreamTarget writing to w.
func NewStreamTarget(w io.Writer, opts ...StreamOption) (*StreamTarget, error) {
	cfg := newStreamConfig(opts)
	s := &StreamTarget{
		w:      w,
		filter: cfg.filter,
		cfg:    cfg,
		logger: cfg.logger.WithComponent("bridge.stream"),
	}
	if cfg.compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		s.zw = zw
	}
	return s, nil
}

// FinalFilter implements Endpoint.
func (s *StreamTarget) FinalFilter() logfilter.LogFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Attach implements Endpoint. A pulling bridge gets the last topic and auto
// tags received from the remote target.
func (s *StreamTarget) Attach(b *Bridge) error {
	s.mu.Lock()
	s.bridges = append(s.bridges, b)
	topic, tagsText := s.topic, s.tags
	s.mu.Unlock()

	if b.cfg.pullTopic && topic != nil {
		b.pull(topic, nil)
	}
	if b.cfg.pullTags && tagsText != nil {
		b.pull(nil, tagsText)
	}
	return nil
}

// Detach implements Endpoint. The bridge has already sent its closes; an
// end frame lets the receiver drop anything left for that source.
func (s *StreamTarget) Detach(b *Bridge) {
	s.mu.Lock()
	s.bridges = slices.DeleteFunc(s.bridges, func(x *Bridge) bool { return x == b })
	s.mu.Unlock()
	if err := s.Deliver(endMessage(b.id)); err != nil {
		s.logger.Warn("failed to write end frame", "bridge", b.id, "error", err)
	}
}

// Deliver implements Endpoint by writing one frame.
func (s *StreamTarget) Deliver(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.buf = appendFrame(s.buf[:0], &s.arena, msg)
	s.buf = append(s.buf, '\n')
	if s.zw == nil {
		_, err := s.w.Write(s.buf)
		return err
	}
	if _, err := s.zw.Write(s.buf); err != nil {
		return err
	}
	return s.zw.Flush()
}

// ReadControl reads the control frames Serve writes with WithControl until
// r ends or ctx is done. Filter frames make the bridges recompute their
// minimal filter; topic and auto tags frames are pulled by the bridges
// configured to pull them.
func (s *StreamTarget) ReadControl(ctx context.Context, r io.Reader) error {
	return readFrames(ctx, r, s.cfg.maxFrame, func(msg Message) error {
		s.mu.Lock()
		switch msg.Kind {
		case KindFilter:
			s.filter = msg.Filter
		case KindTopic:
			s.topic = &msg.Text
		case KindAutoTags:
			s.tags = &msg.Tags
		default:
			s.mu.Unlock()
			return fmt.Errorf("unexpected %s control frame", msg.Kind)
		}
		bridges := slices.Clone(s.bridges)
		s.mu.Unlock()

		for _, b := range bridges {
			switch {
			case msg.Kind == KindFilter:
				b.markFilterDirty()
			case msg.Kind == KindTopic && b.cfg.pullTopic:
				b.pull(&msg.Text, nil)
			case msg.Kind == KindAutoTags && b.cfg.pullTags:
				b.pull(nil, &msg.Tags)
			}
		}
		return nil
	})
}

// Close ends the compressed stream. It does not close the writer.
func (s *StreamTarget) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.zw == nil {
		return nil
	}
	return s.zw.Close()
}

// controlWriter sends control frames from a Target back to a StreamTarget.
type controlWriter struct {
	mu     sync.Mutex
	w      io.Writer
	arena  fastjson.Arena
	buf    []byte
	sent   bool
	filter logfilter.LogFilter
	logger *logging.Logger
}

func newControlWriter(w io.Writer, logger *logging.Logger) *controlWriter {
	return &controlWriter{w: w, logger: logger.WithComponent("bridge.control")}
}

// sendFilter sends f unless it is the filter sent last.
func (c *controlWriter) sendFilter(f logfilter.LogFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent && c.filter == f {
		return
	}
	c.sent, c.filter = true, f
	c.write(Message{Kind: KindFilter, Filter: f})
}

func (c *controlWriter) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(msg)
}

func (c *controlWriter) write(msg Message) {
	c.buf = appendFrame(c.buf[:0], &c.arena, msg)
	c.buf = append(c.buf, '\n')
	if _, err := c.w.Write(c.buf); err != nil {
		c.logger.Warn("failed to write control frame", "kind", msg.Kind.String(), "error", err)
	}
}

func appendFrame(dst []byte, a *fastjson.Arena, msg Message) []byte {
	a.Reset()
	o := a.NewObject()
	o.Set(keyKind, a.NewNumberInt(int(msg.Kind)))
	o.Set(keySource, a.NewNumberString(strconv.FormatUint(msg.Source, 10)))
	if msg.Level != 0 {
		o.Set(keyLevel, a.NewNumberInt(int(msg.Level)))
	}
	if msg.Text != "" {
		o.Set(keyText, a.NewString(msg.Text))
	}
	if msg.Tags != "" {
		o.Set(keyTags, a.NewString(msg.Tags))
	}
	if !msg.Time.IsZero() {
		o.Set(keyTime, a.NewString(msg.Time.String()))
	}
	if msg.Err != "" {
		o.Set(keyErr, a.NewString(msg.Err))
	}
	if msg.Location.File != "" {
		o.Set(keyFile, a.NewString(msg.Location.File))
		o.Set(keyLine, a.NewNumberInt(msg.Location.Line))
	}
	if len(msg.Conclusions) > 0 {
		arr := a.NewArray()
		for i, c := range msg.Conclusions {
			co := a.NewObject()
			co.Set(keyTags, a.NewString(c.Tag))
			co.Set(keyText, a.NewString(c.Text))
			arr.SetArrayItem(i, co)
		}
		o.Set(keyConclusions, arr)
	}
	if msg.Kind == KindFilter {
		o.Set(keyFilter, a.NewNumberString(strconv.FormatUint(uint64(msg.Filter.Pack()), 10)))
	}
	return o.MarshalTo(dst)
}

func decodeFrame(v *fastjson.Value) (Message, error) {
	kind := Kind(v.GetInt(keyKind))
	if kind < KindLog || kind > KindFilter {
		return Message{}, fmt.Errorf("invalid frame kind %d", kind)
	}
	msg := Message{
		Kind:   kind,
		Source: v.GetUint64(keySource),
		Level:  logfilter.LogLevel(v.GetInt(keyLevel)),
		Text:   string(v.GetStringBytes(keyText)),
		Tags:   string(v.GetStringBytes(keyTags)),
		Err:    string(v.GetStringBytes(keyErr)),
		Location: logfilter.Location{
			File: string(v.GetStringBytes(keyFile)),
			Line: v.GetInt(keyLine),
		},
	}
	if ts := v.GetStringBytes(keyTime); len(ts) > 0 {
		t, err := logtime.Parse(string(ts))
		if err != nil {
			return Message{}, err
		}
		msg.Time = t
	}
	for _, c := range v.GetArray(keyConclusions) {
		msg.Conclusions = append(msg.Conclusions, Conclusion{
			Tag:  string(c.GetStringBytes(keyTags)),
			Text: string(c.GetStringBytes(keyText)),
		})
	}
	if kind == KindFilter {
		msg.Filter = logfilter.Unpack(uint32(v.GetUint(keyFilter)))
	}
	return msg, nil
}

// readFrames decodes frames from r and hands them to fn until r ends, ctx
// is done, a frame is malformed or fn fails.
func readFrames(ctx context.Context, r io.Reader, maxFrame int, fn func(Message) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(64*1024, maxFrame)), maxFrame)
	var p fastjson.Parser
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		v, err := p.ParseBytes(line)
		if err != nil {
			return fmt.Errorf("malformed frame: %w", err)
		}
		msg, err := decodeFrame(v)
		if err != nil {
			return fmt.Errorf("malformed frame: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read frames: %w", err)
	}
	return nil
}

// Serve reads frames from r and delivers them to target until r ends, ctx
// is done or a frame is malformed. Each remote bridge behind r is a source
// of its own on the target: its end frame, or the end of the stream,
// closes the groups it left open.
func Serve(ctx context.Context, r io.Reader, target *Target, opts ...StreamOption) error {
	cfg := newStreamConfig(opts)
	if cfg.compress {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	if cfg.control != nil {
		peer := newControlWriter(cfg.control, cfg.logger)
		target.addPeer(peer)
		defer target.removePeer(peer)
	}

	sources := make(map[uint64]uint64) // remote bridge id -> target source
	var order []uint64
	deliver := func(msg Message) {
		if err := target.Deliver(msg); err != nil {
			cfg.logger.Warn("failed to deliver frame", "kind", msg.Kind.String(), "error", err)
		}
	}
	defer func() {
		for _, remote := range slices.Backward(order) {
			target.endSource(sources[remote])
		}
	}()

	return readFrames(ctx, r, cfg.maxFrame, func(msg Message) error {
		if msg.Kind == KindFilter {
			return fmt.Errorf("unexpected %s frame", msg.Kind)
		}
		local, ok := sources[msg.Source]
		if msg.Kind == KindEnd {
			if !ok {
				return nil
			}
			delete(sources, msg.Source)
			order = slices.DeleteFunc(order, func(id uint64) bool { return id == msg.Source })
			if len(msg.Conclusions) == 0 {
				msg = endMessage(local)
			}
			msg.Source = local
			deliver(msg)
			return nil
		}
		if !ok {
			local = target.newSource()
			sources[msg.Source] = local
			order = append(order, msg.Source)
		}
		msg.Source = local
		deliver(msg)
		return nil
	})
}

// ServeListener accepts connections on ln and runs Serve for each until
// ctx is done. WithMaxConnections bounds how many are served at once. Each
// connection also carries control frames back to its StreamTarget.
func ServeListener(ctx context.Context, ln net.Listener, target *Target, opts ...StreamOption) error {
	cfg := newStreamConfig(opts)
	limiter := newConnLimiter(cfg.maxConns)
	logger := cfg.logger.WithComponent("bridge.listener")

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		if err := limiter.Acquire(ctx); err != nil {
			return err
		}
		conn, err := ln.Accept()
		if err != nil {
			limiter.Release()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		wg.Go(func() {
			defer limiter.Release()
			defer conn.Close()
			closeConn := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer closeConn()
			connOpts := append(slices.Clip(opts), WithControl(conn))
			if err := Serve(ctx, conn, target, connOpts...); err != nil && ctx.Err() == nil {
				logger.Warn("connection ended with error", "remote", conn.RemoteAddr().String(), "error", err)
			}
		})
	}
}
