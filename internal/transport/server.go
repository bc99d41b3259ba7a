package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/logging"
	"edgelink/internal/protocol"
)

// Server accepts a single peer at a time. A newly accepted connection
// replaces the previous one.
type Server struct {
	cfg     Config
	log     logrus.FieldLogger
	listen  func(network, addr string) (net.Listener, error)
	notices notifier

	mu    sync.Mutex
	stop  chan struct{}
	ln    net.Listener
	peer  *peer
	state State
	wg    sync.WaitGroup
}

// NewServer creates a stopped Server.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:     cfg,
		log:     logging.MustGetLogger("transport"),
		listen:  net.Listen,
		notices: newNotifier(cfg.NoticeBuffer),
	}
}

// Notices returns the notification stream. The channel stays valid across
// Stop and Listen.
func (s *Server) Notices() <-chan Notice {
	return s.notices.ch
}

// State returns the current connection state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil while not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Listen binds addr in the background. Bind failures are reported as
// NoticeSetupFailed and retried every RetryDelay until Stop.
func (s *Server) Listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyRunning
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.serve(addr, s.stop)
	return nil
}

// Stop closes the listener and the peer and waits for all goroutines. It
// does not emit NoticePeerDisconnected.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	close(s.stop)
	s.stop = nil
	if s.ln != nil {
		_ = s.ln.Close()
		s.ln = nil
	}
	if s.peer != nil {
		s.peer.close()
		s.peer = nil
	}
	s.state = Disconnected
	s.mu.Unlock()

	s.wg.Wait()
}

// Send writes e to the current peer. Without a peer it does nothing. A
// write failure closes the connection and is returned; the disconnect is
// reported by the peer's read goroutine, so Send never waits on Notices.
func (s *Server) Send(e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	p := s.peer
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.write(frame); err != nil {
		p.close()
		return errors.Wrap(err, "failed to send event")
	}
	return nil
}

func (s *Server) serve(addr string, stop chan struct{}) {
	defer s.wg.Done()
	for {
		ln, err := s.listen("tcp", addr)
		if err != nil {
			s.log.WithError(err).Warnf("Failed to listen on %s, retrying in %s", addr, s.cfg.RetryDelay)
			s.notices.emit(stop, Notice{Kind: NoticeSetupFailed, Err: err})
			if sleep(stop, s.cfg.RetryDelay) {
				return
			}
			continue
		}

		s.mu.Lock()
		select {
		case <-stop:
			s.mu.Unlock()
			_ = ln.Close()
			return
		default:
		}
		s.ln = ln
		s.state = Listening
		s.mu.Unlock()
		s.log.Infof("Listening on %s", ln.Addr())

		s.accept(ln, stop)

		select {
		case <-stop:
			return
		default:
		}
		s.mu.Lock()
		if s.ln == ln {
			s.ln = nil
		}
		s.mu.Unlock()
		_ = ln.Close()
		if sleep(stop, s.cfg.RetryDelay) {
			return
		}
	}
}

func (s *Server) accept(ln net.Listener, stop chan struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
			default:
				s.log.WithError(err).Warn("Accept failed, rebinding")
			}
			return
		}

		p := newPeer(conn, s.cfg.WriteTimeout)
		s.mu.Lock()
		old := s.peer
		s.peer = p
		s.state = PeerConnected
		s.mu.Unlock()

		if old != nil {
			old.close()
			s.log.Infof("Replacing peer %s with %s", old.conn.RemoteAddr(), conn.RemoteAddr())
			s.notices.emit(stop, Notice{Kind: NoticePeerDisconnected, ConnID: old.id, Peer: old.conn.RemoteAddr()})
		} else {
			s.log.Infof("Peer connected from %s", conn.RemoteAddr())
		}
		s.notices.emit(stop, Notice{Kind: NoticePeerConnected, ConnID: p.id, Peer: conn.RemoteAddr()})

		s.wg.Add(1)
		go s.read(p, stop)
	}
}

func (s *Server) read(p *peer, stop chan struct{}) {
	defer s.wg.Done()
	log := s.log.WithField("conn", p.id)
	err := readLoop(p, s.cfg.ReadTimeout, log, func(ev protocol.Event) bool {
		return s.notices.emit(stop, Notice{Kind: NoticeEventReceived, ConnID: p.id, Peer: p.conn.RemoteAddr(), Event: ev})
	})
	if err != nil {
		s.drop(p, stop)
	}
}

// drop closes p and reports the disconnect if p was still the current peer.
func (s *Server) drop(p *peer, stop chan struct{}) {
	p.close()

	s.mu.Lock()
	current := s.peer == p
	if current {
		s.peer = nil
		s.state = Listening
		if s.ln == nil {
			s.state = Disconnected
		}
	}
	s.mu.Unlock()

	if current && stop != nil {
		s.log.Infof("Peer %s disconnected", p.conn.RemoteAddr())
		s.notices.emit(stop, Notice{Kind: NoticePeerDisconnected, ConnID: p.id, Peer: p.conn.RemoteAddr()})
	}
}
