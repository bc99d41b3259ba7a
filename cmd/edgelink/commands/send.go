package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"edgelink/internal/capture"
	"edgelink/internal/config"
	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/hotkey"
	"edgelink/internal/linkprobe"
	"edgelink/internal/logging"
	"edgelink/internal/osutils"
	"edgelink/internal/session"
	"edgelink/internal/status"
	"edgelink/internal/transport"
	"edgelink/internal/tray"
)

var (
	noTray   bool
	noStatus bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Capture local input and forward it to the peer when the cursor leaves the target edge",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runSender()
	},
}

func init() {
	sendCmd.Flags().BoolVar(&noTray, "no-tray", false, "do not show the tray icon")
	sendCmd.Flags().BoolVar(&noStatus, "no-status", false, "do not start the status server")
}

// edgeSaver persists target edge changes made from the tray or the status
// server.
type edgeSaver struct {
	*session.Orchestrator
	mgr *config.Manager
}

func (s edgeSaver) SetTargetEdge(e edge.Edge) {
	s.Orchestrator.SetTargetEdge(e)
	s.mgr.Update(func(c *config.Config) { c.General.TargetEdge = e })
	if err := s.mgr.Save(); err != nil {
		logging.MustGetLogger("send").WithError(err).Warn("Failed to save target edge")
	}
}

func runSender() error {
	mgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.MustGetLogger("send")

	combo, err := hotkey.Parse(cfg.General.ReturnHotkey)
	if err != nil {
		return err
	}
	cursorMode, err := capture.ParseCursorMode(cfg.Capture.Mode)
	if err != nil {
		return err
	}
	probe, err := linkprobe.New(cfg.Link.Interface, cfg.Link.Subnet)
	if err != nil {
		return err
	}

	if cfg.Link.ManageFirewall {
		if err := osutils.EnsureFirewallRule(cfg.Link.Port); err != nil {
			log.WithError(err).Warn("Failed to open the link port in the firewall")
		}
	}

	bounds := display.Cached(display.Bounds, time.Second)
	cursor := display.SystemCursor{}

	engine := capture.New(capture.Config{
		Inset:        cfg.Capture.Inset,
		QueueSize:    cfg.Capture.QueueSize,
		Hotkey:       combo,
		RestoreInset: cfg.Edge.Threshold + 1,
	}, capture.NewSystemHook(), cursor, bounds)

	tcfg := transport.DefaultConfig()
	tcfg.RetryDelay = cfg.Link.RetryDelay()
	server := transport.NewServer(tcfg)

	orch := session.New(session.Config{
		BindAddr:      cfg.Link.ListenAddr(),
		TargetEdge:    cfg.General.TargetEdge,
		CursorMode:    cursorMode,
		ProbeInterval: cfg.Link.ProbeInterval(),
		PollInterval:  cfg.Edge.PollInterval(),
		Threshold:     cfg.Edge.Threshold,
		Debounce:      cfg.Edge.Debounce(),
	}, server, engine, probe, cursor, bounds)
	ctrl := edgeSaver{Orchestrator: orch, mgr: mgr}

	if cfg.Status.Enabled && !noStatus {
		st := status.NewServer(ctrl, cfg.Status.Token)
		if err := st.Start(cfg.Status.Addr); err != nil {
			log.WithError(err).Warn("Status server disabled")
		} else {
			orch.AddNotifier(st)
			defer func() {
				if err := st.Close(); err != nil {
					log.WithError(err).Debug("Status server close")
				}
			}()
		}
	}

	var t *tray.Tray
	if cfg.General.ShowTray && !noTray {
		t = tray.New(ctrl)
		orch.AddNotifier(t)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitOsSignals(ctx, cancel, log)

	log.Infof("Sending over %s, target edge %s", cfg.Link.ListenAddr(), cfg.General.TargetEdge)

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx)
		if t != nil {
			t.Stop()
		}
	}()

	if t != nil {
		// The tray needs the main thread on macOS.
		t.Run()
		cancel()
	}
	return <-errCh
}
