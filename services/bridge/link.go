package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"tinycore-go/bus"
)

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a length-prefixed frame: type, big-endian uint16 length, body.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame sends header and body in one write so frames never interleave.
func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("bridge: frame too large: %d", len(f.Payload))
	}
	buf := make([]byte, 3+len(f.Payload))
	buf[0] = f.Type
	buf[1] = byte(len(f.Payload) >> 8)
	buf[2] = byte(len(f.Payload))
	copy(buf[3:], f.Payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}

// -----------------------------------------------------------------------------
// Link
// -----------------------------------------------------------------------------

var topicBridgeReply = bus.T("_bridge")

// inboundTTL bounds how long a peer message is remembered for echo
// suppression. A copy dropped from a full forward queue is never seen
// again, so its mark has to expire.
const inboundTTL = 30 * time.Second

type inboundMark struct {
	n  int // forward patterns still to see it
	at time.Time
}

// link owns one established connection to the peer.
type link struct {
	conn *bus.Connection
	rd   *framedReader
	wr   *framedWriter
	cfg  Config

	patterns []bus.Topic

	mu      sync.Mutex
	inbound map[*bus.Message]inboundMark // published by us; never echoed back
	pending map[int]bus.Topic            // local reply seq -> peer ReplyTo
	seq     int
}

func newLink(conn *bus.Connection, rw io.ReadWriter, cfg Config) *link {
	patterns := make([]bus.Topic, len(cfg.Forward))
	for i, p := range cfg.Forward {
		patterns[i] = ParsePattern(p)
	}
	return &link{
		conn:     conn,
		rd:       newFramedReader(rw),
		wr:       newFramedWriter(rw),
		cfg:      cfg,
		patterns: patterns,
		inbound:  map[*bus.Message]inboundMark{},
		pending:  map[int]bus.Topic{},
	}
}

// run returns nil when ctx ends or the peer closes cleanly.
func (l *link) run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	fwd := make([]*bus.Subscription, 0, len(l.patterns))
	for _, p := range l.patterns {
		fwd = append(fwd, l.conn.Subscribe(p))
	}
	replies := l.conn.Subscribe(topicBridgeReply.Append("#"))
	defer func() {
		for _, s := range fwd {
			l.conn.Unsubscribe(s)
		}
		l.conn.Unsubscribe(replies)
		l.mu.Lock()
		clear(l.inbound)
		clear(l.pending)
		l.mu.Unlock()
	}()

	// Fan local subscriptions into one channel.
	done := make(chan struct{})
	defer close(done)
	out := make(chan *bus.Message, 16)
	for _, s := range fwd {
		wg.Add(1)
		go func(ch <-chan *bus.Message) {
			defer wg.Done()
			for m := range ch {
				select {
				case out <- m:
				case <-done:
					return
				}
			}
		}(s.Channel())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.readLoop() }()

	ping := l.cfg.PingMs
	if ping <= 0 {
		ping = 5000
	}
	tick := time.NewTicker(time.Duration(ping) * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = l.wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case now := <-tick.C:
			l.expire(now)
			if err := l.wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case m := <-out:
			if l.wasInbound(m) {
				continue
			}
			if err := l.send(m.Topic, m.Payload, m.Retained, m.ReplyTo); err != nil {
				return err
			}
		case m := <-replies.Channel():
			if err := l.routeReply(m); err != nil {
				return err
			}
		}
	}
}

func (l *link) readLoop() error {
	for {
		f, err := l.rd.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case framePing:
			if err := l.wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case framePong:
		case framePub:
			if err := l.receive(f.Payload); err != nil {
				// A malformed frame is dropped; the link stays up.
				continue
			}
		case frameClose:
			return nil
		}
	}
}

func (l *link) send(topic bus.Topic, payload any, retained bool, replyTo bus.Topic) error {
	w := wireMsg{Topic: encodeTopic(topic), Retained: retained}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			// Payloads that cannot be encoded stay local.
			return nil
		}
		w.Payload = raw
	}
	if len(replyTo) > 0 {
		w.ReplyTo = encodeTopic(replyTo)
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil
	}
	return l.wr.WriteFrame(Frame{Type: framePub, Payload: body})
}

// receive publishes a peer message locally.
func (l *link) receive(body []byte) error {
	var w wireMsg
	if err := json.Unmarshal(body, &w); err != nil {
		return err
	}
	topic, err := decodeTopic(w.Topic)
	if err != nil {
		return err
	}
	var payload any
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return err
		}
	}
	msg := l.conn.NewMessage(topic, payload, w.Retained)

	l.mu.Lock()
	if len(w.ReplyTo) > 0 {
		remote, err := decodeTopic(w.ReplyTo)
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.seq++
		l.pending[l.seq] = remote
		msg.ReplyTo = topicBridgeReply.Append(l.seq)
	}
	if n := l.forwards(topic); n > 0 {
		l.inbound[msg] = inboundMark{n: n, at: time.Now()}
	}
	l.mu.Unlock()

	l.conn.Publish(msg)
	return nil
}

func (l *link) wasInbound(m *bus.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	mark, ok := l.inbound[m]
	if !ok {
		return false
	}
	if mark.n <= 1 {
		delete(l.inbound, m)
	} else {
		mark.n--
		l.inbound[m] = mark
	}
	return true
}

// expire forgets inbound marks older than inboundTTL.
func (l *link) expire(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for m, mark := range l.inbound {
		if now.Sub(mark.at) > inboundTTL {
			delete(l.inbound, m)
		}
	}
}

// routeReply sends a local reply to the peer's original ReplyTo.
func (l *link) routeReply(m *bus.Message) error {
	if len(m.Topic) != 2 {
		return nil
	}
	seq, ok := m.Topic[1].(int)
	if !ok {
		return nil
	}
	l.mu.Lock()
	remote, ok := l.pending[seq]
	delete(l.pending, seq)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return l.send(remote, m.Payload, false, nil)
}

// forwards counts the forward patterns matching topic.
func (l *link) forwards(topic bus.Topic) int {
	n := 0
	for _, p := range l.patterns {
		if Match(p, topic) {
			n++
		}
	}
	return n
}

// Match reports whether topic matches pattern under the bus wildcard rules.
func Match(pattern, topic bus.Topic) bool {
	for i, p := range pattern {
		if p == "#" {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if p != "+" && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}
