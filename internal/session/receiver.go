package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/logging"
	"edgelink/internal/protocol"
	"edgelink/internal/transport"
)

// Dialer is the connecting side of the link.
type Dialer interface {
	Dial(addr string) error
	Stop()
	Send(e protocol.Event) error
	Notices() <-chan transport.Notice
}

// Injector replays events locally.
type Injector interface {
	Inject(e protocol.Event)
	ReleaseAll()
}

// ReceiverConfig holds receiver settings.
type ReceiverConfig struct {
	PeerAddr string
	// ReturnEdge hands control back when an injected pointer reaches it.
	// None disables the check.
	ReturnEdge edge.Edge
	Threshold  float64
	// Cursor, when set, is polled every PollInterval so a pointer attached
	// to this machine can also hand control back.
	Cursor       display.Cursor
	PollInterval time.Duration
}

// Receiver injects every event it receives from the sender.
type Receiver struct {
	cfg      ReceiverConfig
	dialer   Dialer
	injector Injector
	bounds   display.BoundsFunc
	detector *edge.Detector
	log      logrus.FieldLogger

	active bool
}

// NewReceiver creates a new Receiver.
func NewReceiver(cfg ReceiverConfig, d Dialer, inj Injector, bounds display.BoundsFunc) *Receiver {
	return &Receiver{
		cfg:      cfg,
		dialer:   d,
		injector: inj,
		bounds:   bounds,
		detector: edge.NewDetector(cfg.Threshold, edge.DefaultMinInterval),
		log:      logging.MustGetLogger("receiver"),
	}
}

// Run connects to the sender and injects events until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	if err := r.dialer.Dial(r.cfg.PeerAddr); err != nil {
		return err
	}
	defer func() {
		r.dialer.Stop()
		r.injector.ReleaseAll()
	}()
	r.log.Infof("Connecting to %s", r.cfg.PeerAddr)

	var poll <-chan time.Time
	if r.cfg.Cursor != nil && r.cfg.PollInterval > 0 && r.cfg.ReturnEdge != edge.None {
		t := time.NewTicker(r.cfg.PollInterval)
		defer t.Stop()
		poll = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-r.dialer.Notices():
			r.handle(n)
		case <-poll:
			r.pollCursor()
		}
	}
}

func (r *Receiver) handle(n transport.Notice) {
	switch n.Kind {
	case transport.NoticePeerConnected:
		r.log.Infof("Sender %s connected", n.Peer)
	case transport.NoticePeerDisconnected:
		r.log.Infof("Sender %s disconnected", n.Peer)
		r.active = false
		r.injector.ReleaseAll()
	case transport.NoticeEventReceived:
		r.receive(n.Event)
	}
}

func (r *Receiver) receive(ev protocol.Event) {
	if ev.Kind == protocol.KindControlReturn {
		r.log.Debug("Sender took control back")
		r.active = false
		r.injector.ReleaseAll()
		return
	}
	r.active = true
	r.injector.Inject(ev)
	if ev.Kind == protocol.KindPointerMove {
		r.checkReturn(ev)
	}
}

// checkReturn sends control-return once the injected pointer reaches the
// return edge of the local display.
func (r *Receiver) checkReturn(ev protocol.Event) {
	if r.cfg.ReturnEdge == edge.None || !r.active {
		return
	}
	b, err := r.bounds()
	if err != nil {
		return
	}
	n := display.Point{X: ev.X, Y: ev.Y}
	r.returnAt(b.Denormalize(n), b, n)
}

// pollCursor runs the same check against the real cursor.
func (r *Receiver) pollCursor() {
	if !r.active {
		return
	}
	p, err := r.cfg.Cursor.Position()
	if err != nil {
		r.log.WithError(err).Debug("Failed to read cursor")
		return
	}
	b, err := r.bounds()
	if err != nil {
		return
	}
	r.returnAt(p, b, b.Normalize(p))
}

// returnAt checks local point p; n is the same point normalized and goes on
// the wire.
func (r *Receiver) returnAt(p display.Point, b display.Rect, n display.Point) {
	e, ok := r.detector.Check(p, b)
	if !ok || e != r.cfg.ReturnEdge {
		return
	}
	r.log.Infof("Pointer reached %s edge, returning control", e)
	r.active = false
	r.injector.ReleaseAll()
	if err := r.dialer.Send(protocol.ControlReturn(n.X, n.Y)); err != nil {
		r.log.WithError(err).Warn("Failed to send control-return")
	}
}
