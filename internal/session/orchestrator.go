package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"edgelink/internal/capture"
	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/logging"
	"edgelink/internal/protocol"
	"edgelink/internal/transport"
)

// Transport is the listening side of the link.
type Transport interface {
	Listen(addr string) error
	Stop()
	Send(e protocol.Event) error
	State() transport.State
	Notices() <-chan transport.Notice
}

// Capture is the local input capture engine.
type Capture interface {
	Start(opts capture.Options) error
	Stop()
	RequestReturn()
	Mode() capture.Mode
	LastExit() capture.ExitReason
	Events() <-chan protocol.Event
}

// LinkProbe reports whether the point-to-point link is attached.
type LinkProbe interface {
	IsLinkPresent() bool
}

// Notifier receives state changes. Calls are made from the orchestrator
// goroutine and must return quickly.
type Notifier interface {
	SessionModeChanged(m Mode)
	PeerConnected()
	PeerDisconnected()
}

// Config holds orchestrator settings.
type Config struct {
	BindAddr      string
	TargetEdge    edge.Edge
	CursorMode    capture.CursorMode
	ProbeInterval time.Duration
	PollInterval  time.Duration
	Threshold     float64
	Debounce      time.Duration
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		BindAddr:      "192.168.100.1:9876",
		TargetEdge:    edge.Right,
		CursorMode:    capture.Pinned,
		ProbeInterval: 5 * time.Second,
		PollInterval:  16 * time.Millisecond,
		Threshold:     edge.DefaultThreshold,
		Debounce:      edge.DefaultMinInterval,
	}
}

// Status is a snapshot for UI collaborators.
type Status struct {
	Mode          Mode      `json:"mode"`
	PeerConnected bool      `json:"peer_connected"`
	TargetEdge    edge.Edge `json:"target_edge"`
}

// Orchestrator runs the sender state machine.
type Orchestrator struct {
	cfg       Config
	transport Transport
	capture   Capture
	probe     LinkProbe
	cursor    display.Cursor
	bounds    display.BoundsFunc
	detector  *edge.Detector
	log       logrus.FieldLogger

	notifiers []Notifier

	mu     sync.Mutex
	link   bool
	target edge.Edge

	// Owned by the Run goroutine.
	peerID   uuid.UUID
	lastMode Mode

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a new Orchestrator.
func New(cfg Config, t Transport, c Capture, probe LinkProbe, cursor display.Cursor, bounds display.BoundsFunc) *Orchestrator {
	if cfg.TargetEdge == edge.None {
		cfg.TargetEdge = edge.Right
	}
	return &Orchestrator{
		cfg:       cfg,
		transport: t,
		capture:   c,
		probe:     probe,
		cursor:    cursor,
		bounds:    bounds,
		detector:  edge.NewDetector(cfg.Threshold, cfg.Debounce),
		log:       logging.MustGetLogger("session"),
		target:    cfg.TargetEdge,
		lastMode:  LinkAbsent,
		quit:      make(chan struct{}),
	}
}

// AddNotifier registers n. It must be called before Run.
func (o *Orchestrator) AddNotifier(n Notifier) {
	o.notifiers = append(o.notifiers, n)
}

// Mode derives the current session mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	link := o.link
	o.mu.Unlock()
	return DeriveMode(link, o.transport.State(), o.capture.Mode())
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status() Status {
	return Status{
		Mode:          o.Mode(),
		PeerConnected: o.transport.State() == transport.PeerConnected,
		TargetEdge:    o.TargetEdge(),
	}
}

// TargetEdge returns the edge that hands control to the peer.
func (o *Orchestrator) TargetEdge() edge.Edge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target
}

// SetTargetEdge changes the edge that hands control to the peer.
func (o *Orchestrator) SetTargetEdge(e edge.Edge) {
	if e == edge.None {
		return
	}
	o.mu.Lock()
	o.target = e
	o.mu.Unlock()
	o.log.Infof("Target edge set to %s", e)
}

// Quit makes Run return.
func (o *Orchestrator) Quit() {
	o.quitOnce.Do(func() { close(o.quit) })
}

// Run drives the state machine until ctx is done or Quit is called. On
// return capture is stopped and the transport is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	probeTicker := time.NewTicker(o.cfg.ProbeInterval)
	defer probeTicker.Stop()
	pollTicker := time.NewTicker(o.cfg.PollInterval)
	defer pollTicker.Stop()

	defer func() {
		o.capture.Stop()
		o.transport.Stop()
		o.setLink(false)
		o.publish()
	}()

	o.probeLink()
	o.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.quit:
			o.log.Info("Quit requested")
			return nil
		case <-probeTicker.C:
			o.probeLink()
		case <-pollTicker.C:
			o.poll()
		case n := <-o.transport.Notices():
			o.handleNotice(n)
		case ev := <-o.capture.Events():
			o.handleCaptured(ev)
		}
		o.publish()
	}
}

func (o *Orchestrator) setLink(v bool) {
	o.mu.Lock()
	o.link = v
	o.mu.Unlock()
}

func (o *Orchestrator) hasLink() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.link
}

func (o *Orchestrator) probeLink() {
	present := o.probe.IsLinkPresent()
	switch {
	case present && !o.hasLink():
		o.setLink(true)
		o.log.Infof("Link detected, listening on %s", o.cfg.BindAddr)
		if err := o.transport.Listen(o.cfg.BindAddr); err != nil && err != transport.ErrAlreadyRunning {
			o.log.WithError(err).Error("Failed to start transport")
		}
	case !present && o.hasLink():
		o.setLink(false)
		o.log.Warn("Link lost")
		o.capture.Stop()
		o.transport.Stop()
		// Stop reports nothing, so a peer lost with the link is announced here.
		if o.peerID != uuid.Nil {
			o.peerID = uuid.Nil
			for _, nt := range o.notifiers {
				nt.PeerDisconnected()
			}
		}
	}
}

// poll samples the cursor and starts forwarding when it reaches the target
// edge. It only runs while Idle, so forwarding always requires a peer.
func (o *Orchestrator) poll() {
	if o.Mode() != Idle {
		return
	}
	p, err := o.cursor.Position()
	if err != nil {
		o.log.WithError(err).Debug("Failed to read cursor")
		return
	}
	b, err := o.bounds()
	if err != nil {
		o.log.WithError(err).Debug("Failed to read display bounds")
		return
	}
	e, ok := o.detector.Check(p, b)
	if !ok || e != o.TargetEdge() {
		return
	}
	if err := o.capture.Start(capture.Options{Edge: e, Mode: o.cfg.CursorMode}); err != nil {
		o.log.WithError(err).Error("Failed to start capture")
		return
	}
	o.log.Infof("Cursor reached %s edge, forwarding", e)
}

func (o *Orchestrator) handleNotice(n transport.Notice) {
	switch n.Kind {
	case transport.NoticePeerConnected:
		o.peerID = n.ConnID
		for _, nt := range o.notifiers {
			nt.PeerConnected()
		}
	case transport.NoticePeerDisconnected:
		if n.ConnID != o.peerID {
			o.log.WithField("conn", n.ConnID).Debug("Ignoring disconnect of replaced peer")
			return
		}
		o.peerID = uuid.Nil
		o.capture.Stop()
		for _, nt := range o.notifiers {
			nt.PeerDisconnected()
		}
	case transport.NoticeEventReceived:
		if n.Event.Kind == protocol.KindControlReturn {
			o.log.Info("Peer returned control")
			o.capture.RequestReturn()
			return
		}
		o.log.WithField("kind", n.Event.Kind).Debug("Ignoring event from peer")
	case transport.NoticeSetupFailed:
		o.log.WithError(n.Err).Debug("Transport setup failed")
	}
}

func (o *Orchestrator) handleCaptured(ev protocol.Event) {
	if ev.Kind == protocol.KindControlReturn {
		o.capture.Stop()
		if o.capture.LastExit() == capture.ExitRequested {
			return
		}
		if err := o.transport.Send(ev); err != nil {
			o.log.WithError(err).Warn("Failed to send control-return")
		}
		return
	}
	if o.transport.State() != transport.PeerConnected {
		o.capture.Stop()
		return
	}
	if err := o.transport.Send(ev); err != nil {
		o.log.WithError(err).Debug("Failed to forward event")
	}
}

func (o *Orchestrator) publish() {
	m := o.Mode()
	if m == o.lastMode {
		return
	}
	o.log.Infof("Session mode %s -> %s", o.lastMode, m)
	o.lastMode = m
	for _, n := range o.notifiers {
		n.SessionModeChanged(m)
	}
}
