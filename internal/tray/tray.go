// Package tray shows the session state in the system tray using
// getlantern/systray.
package tray

import (
	"strings"
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"edgelink/internal/edge"
	"edgelink/internal/logging"
	"edgelink/internal/session"
)

// Controller is the part of the orchestrator the tray drives.
type Controller interface {
	Status() session.Status
	SetTargetEdge(e edge.Edge)
	Quit()
}

var edges = []edge.Edge{edge.Right, edge.Left, edge.Top, edge.Bottom}

// Tray manages the tray icon and menu. It implements session.Notifier.
type Tray struct {
	ctrl Controller
	log  logrus.FieldLogger

	mu     sync.Mutex
	mode   session.Mode
	peer   bool
	ready  bool
	status *systray.MenuItem
	edges  map[edge.Edge]*systray.MenuItem

	quitCh chan struct{}
}

// New creates a new system tray.
func New(ctrl Controller) *Tray {
	st := ctrl.Status()
	return &Tray{
		ctrl:   ctrl,
		log:    logging.MustGetLogger("tray"),
		mode:   st.Mode,
		peer:   st.PeerConnected,
		edges:  make(map[edge.Edge]*systray.MenuItem),
		quitCh: make(chan struct{}),
	}
}

// Run starts the tray event loop. It blocks and must be called from the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop stops the tray.
func (t *Tray) Stop() {
	systray.Quit()
}

// SessionModeChanged implements session.Notifier.
func (t *Tray) SessionModeChanged(m session.Mode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
	t.refresh()
}

// PeerConnected implements session.Notifier.
func (t *Tray) PeerConnected() {
	t.mu.Lock()
	t.peer = true
	t.mu.Unlock()
	t.refresh()
}

// PeerDisconnected implements session.Notifier.
func (t *Tray) PeerDisconnected() {
	t.mu.Lock()
	t.peer = false
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) setupMenu() {
	systray.SetTitle("edgelink")
	systray.SetIcon(icon())

	t.mu.Lock()
	t.status = systray.AddMenuItem("", "")
	t.status.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	target := systray.AddMenuItem("Target edge", "Screen edge that hands control to the peer")
	current := t.ctrl.Status().TargetEdge
	for _, e := range edges {
		item := target.AddSubMenuItem(title(e), "")
		if e == current {
			item.Check()
		}
		t.mu.Lock()
		t.edges[e] = item
		t.mu.Unlock()
		go t.watchEdge(e, item)
	}

	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop edgelink")
	go func() {
		select {
		case <-quit.ClickedCh:
			t.log.Info("Quit selected from tray")
			t.ctrl.Quit()
		case <-t.quitCh:
		}
	}()

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	t.refresh()
}

func (t *Tray) watchEdge(e edge.Edge, item *systray.MenuItem) {
	for {
		select {
		case <-item.ClickedCh:
			t.ctrl.SetTargetEdge(e)
			t.mu.Lock()
			for other, it := range t.edges {
				if other == e {
					it.Check()
				} else {
					it.Uncheck()
				}
			}
			t.mu.Unlock()
			t.refresh()
		case <-t.quitCh:
			return
		}
	}
}

func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}
	text := label(t.mode, t.peer)
	t.status.SetTitle(text)
	systray.SetTooltip("edgelink: " + text)
}

// label is the status line shown at the top of the menu.
func label(m session.Mode, peer bool) string {
	switch m {
	case session.LinkAbsent:
		return "Link not detected"
	case session.AwaitingPeer:
		return "Waiting for peer"
	case session.Forwarding:
		return "Forwarding input to peer"
	}
	if peer {
		return "Peer connected"
	}
	return "Idle"
}

func title(e edge.Edge) string {
	s := e.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// icon returns a blank 16x16 32-bit ICO.
func icon() []byte {
	const pixels = 16 * 16 * 4
	const mask = 16 * 4
	const dib = 40
	buf := make([]byte, 22+dib+pixels+mask)

	// ICONDIR with one entry.
	copy(buf[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	size := dib + pixels + mask
	copy(buf[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		byte(size), byte(size >> 8), 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// BITMAPINFOHEADER, height doubled for the AND mask.
	copy(buf[22:22+dib], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
	})
	return buf
}
