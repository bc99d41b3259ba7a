// Package transport carries framed events over a single point-to-point TCP
// connection.
package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/protocol"
)

// DefaultPort is the well-known link port.
const DefaultPort = 9876

// ErrAlreadyRunning is returned when Listen or Dial is called twice without
// an intervening Stop.
var ErrAlreadyRunning = errors.New("transport is already running")

// State is the connection state of an endpoint.
type State int

const (
	Disconnected State = iota
	Listening
	PeerConnected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Listening:
		return "listening"
	case PeerConnected:
		return "peer_connected"
	default:
		return "unknown"
	}
}

// NoticeKind identifies a Notice.
type NoticeKind int

const (
	NoticePeerConnected NoticeKind = iota
	NoticePeerDisconnected
	NoticeEventReceived
	// NoticeSetupFailed reports a bind or dial failure that will be retried.
	NoticeSetupFailed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticePeerConnected:
		return "peer_connected"
	case NoticePeerDisconnected:
		return "peer_disconnected"
	case NoticeEventReceived:
		return "event_received"
	case NoticeSetupFailed:
		return "setup_failed"
	default:
		return "unknown"
	}
}

// Notice is pushed on an endpoint's notification stream.
type Notice struct {
	Kind NoticeKind
	// ConnID identifies the connection a peer or event notice belongs to.
	ConnID uuid.UUID
	Peer   net.Addr
	Event  protocol.Event
	Err    error
}

// Config holds the timing knobs shared by Server and Client.
type Config struct {
	// RetryDelay is the pause between failed bind or dial attempts.
	RetryDelay time.Duration
	// ConnectTimeout bounds a single dial.
	ConnectTimeout time.Duration
	// ReadTimeout closes a connection that stays silent this long. Zero
	// disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration
	// NoticeBuffer is the capacity of the notification channel.
	NoticeBuffer int
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		RetryDelay:     2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		NoticeBuffer:   256,
	}
}

// peer is one live connection. Writes are serialized so a frame is never
// split by a concurrent sender.
type peer struct {
	id   uuid.UUID
	conn net.Conn
	r    *bufio.Reader

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
}

func newPeer(conn net.Conn, writeTimeout time.Duration) *peer {
	tune(conn)
	return &peer{
		id:           uuid.New(),
		conn:         conn,
		r:            bufio.NewReader(conn),
		writeTimeout: writeTimeout,
	}
}

// tune disables Nagle so small input frames leave immediately.
func tune(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(15 * time.Second)
	}
}

func (p *peer) write(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	_, err := p.conn.Write(frame)
	return err
}

func (p *peer) close() {
	p.closeOnce.Do(func() { _ = p.conn.Close() })
}

// notifier owns a notification stream that outlives restarts.
type notifier struct {
	ch chan Notice
}

func newNotifier(size int) notifier {
	if size <= 0 {
		size = DefaultConfig().NoticeBuffer
	}
	return notifier{ch: make(chan Notice, size)}
}

// emit blocks until n is delivered or stop is closed.
func (n notifier) emit(stop <-chan struct{}, notice Notice) bool {
	select {
	case n.ch <- notice:
		return true
	case <-stop:
		return false
	}
}

// readLoop delivers events from p until the connection fails. Undecodable
// payloads are dropped; length violations end the connection.
func readLoop(p *peer, readTimeout time.Duration, log logrus.FieldLogger, deliver func(protocol.Event) bool) error {
	for {
		if readTimeout > 0 {
			_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		payload, err := protocol.ReadFrame(p.r)
		if err != nil {
			switch {
			case protocol.IsProtocolViolation(err):
				log.WithError(err).Warn("Protocol violation, closing connection")
			case err == io.EOF:
				log.Debug("Peer closed connection")
			default:
				log.WithError(err).Debug("Read failed")
			}
			return err
		}
		ev, err := protocol.Decode(payload)
		if err != nil {
			log.WithError(err).Warn("Dropping undecodable message")
			continue
		}
		if !deliver(ev) {
			return nil
		}
	}
}

// sleep waits for d or until stop is closed and reports whether it was
// stopped.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-stop:
		return true
	}
}
