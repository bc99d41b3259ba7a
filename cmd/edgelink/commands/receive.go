package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/inject"
	"edgelink/internal/keymap"
	"edgelink/internal/logging"
	"edgelink/internal/session"
	"edgelink/internal/transport"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Connect to the sender and replay its input locally",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runReceiver()
	},
}

func runReceiver() error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.MustGetLogger("receive")

	space, err := keymap.ParseSpace(cfg.Inject.KeyCodes)
	if err != nil {
		return err
	}
	b, err := display.Bounds()
	if err != nil {
		return err
	}
	dev, err := inject.OpenDevice(inject.DeviceConfig{
		KeyCodes:    space,
		ScrollScale: cfg.Inject.ScrollScale,
		Bounds:      b,
	})
	if err != nil {
		return err
	}

	bounds := display.Cached(display.Bounds, time.Second)
	inj := inject.New(dev, bounds)
	defer func() {
		if err := inj.Close(); err != nil {
			log.WithError(err).Warn("Failed to close input device")
		}
	}()

	tcfg := transport.DefaultConfig()
	tcfg.RetryDelay = cfg.Link.RetryDelay()
	tcfg.ConnectTimeout = cfg.Link.ConnectTimeout()
	tcfg.ReadTimeout = cfg.Link.ReadTimeout()
	client := transport.NewClient(tcfg)

	returnEdge := edge.None
	if cfg.Inject.ReturnOnEdge {
		returnEdge = cfg.General.TargetEdge.Opposite()
	}
	rcv := session.NewReceiver(session.ReceiverConfig{
		PeerAddr:     cfg.Link.DialAddr(),
		ReturnEdge:   returnEdge,
		Threshold:    cfg.Edge.Threshold,
		Cursor:       display.SystemCursor{},
		PollInterval: cfg.Edge.PollInterval(),
	}, client, inj, bounds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitOsSignals(ctx, cancel, log)

	log.Infof("Receiving from %s", cfg.Link.DialAddr())
	return rcv.Run(ctx)
}
