package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/logging"
	"edgelink/internal/protocol"
)

// Client keeps one outbound connection to a Server alive, redialing after
// every failure until Stop.
type Client struct {
	cfg     Config
	log     logrus.FieldLogger
	dial    func(network, addr string) (net.Conn, error)
	notices notifier

	mu    sync.Mutex
	stop  chan struct{}
	peer  *peer
	state State
	wg    sync.WaitGroup
}

// NewClient creates a stopped Client.
func NewClient(cfg Config) *Client {
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Client{
		cfg:     cfg,
		log:     logging.MustGetLogger("transport"),
		dial:    d.Dial,
		notices: newNotifier(cfg.NoticeBuffer),
	}
}

// Notices returns the notification stream.
func (c *Client) Notices() <-chan Notice {
	return c.notices.ch
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dial connects to addr in the background.
func (c *Client) Dial(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return ErrAlreadyRunning
	}
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.run(addr, c.stop)
	return nil
}

// Stop closes the connection and stops redialing.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stop == nil {
		c.mu.Unlock()
		return
	}
	close(c.stop)
	c.stop = nil
	if c.peer != nil {
		c.peer.close()
		c.peer = nil
	}
	c.state = Disconnected
	c.mu.Unlock()

	c.wg.Wait()
}

// Send writes e to the server. Without a connection it does nothing.
func (c *Client) Send(e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.write(frame); err != nil {
		// The read loop notices the closed socket and reports the disconnect.
		p.close()
		return errors.Wrap(err, "failed to send event")
	}
	return nil
}

func (c *Client) run(addr string, stop chan struct{}) {
	defer c.wg.Done()
	for {
		conn, err := c.dial("tcp", addr)
		if err != nil {
			c.log.WithError(err).Debugf("Failed to connect to %s, retrying in %s", addr, c.cfg.RetryDelay)
			c.notices.emit(stop, Notice{Kind: NoticeSetupFailed, Err: err})
			if sleep(stop, c.cfg.RetryDelay) {
				return
			}
			continue
		}

		p := newPeer(conn, c.cfg.WriteTimeout)
		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			p.close()
			return
		default:
		}
		c.peer = p
		c.state = PeerConnected
		c.mu.Unlock()

		c.log.Infof("Connected to %s", conn.RemoteAddr())
		c.notices.emit(stop, Notice{Kind: NoticePeerConnected, ConnID: p.id, Peer: conn.RemoteAddr()})

		log := c.log.WithField("conn", p.id)
		_ = readLoop(p, c.cfg.ReadTimeout, log, func(ev protocol.Event) bool {
			return c.notices.emit(stop, Notice{Kind: NoticeEventReceived, ConnID: p.id, Peer: conn.RemoteAddr(), Event: ev})
		})
		p.close()

		c.mu.Lock()
		if c.peer == p {
			c.peer = nil
			c.state = Disconnected
		}
		c.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
		c.log.Infof("Disconnected from %s", conn.RemoteAddr())
		c.notices.emit(stop, Notice{Kind: NoticePeerDisconnected, ConnID: p.id, Peer: conn.RemoteAddr()})
		if sleep(stop, c.cfg.RetryDelay) {
			return
		}
	}
}
