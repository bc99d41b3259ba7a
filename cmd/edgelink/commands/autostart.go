package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"edgelink/internal/autostart"
	"edgelink/internal/config"
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage starting edgelink at login",
}

func init() {
	autostartCmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Start the configured role at login",
			RunE: func(_ *cobra.Command, _ []string) error {
				return setAutostart(true)
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Stop starting at login",
			RunE: func(_ *cobra.Command, _ []string) error {
				return setAutostart(false)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show whether edgelink starts at login",
			Run: func(_ *cobra.Command, _ []string) {
				if autostart.IsEnabled() {
					fmt.Println("enabled")
				} else {
					fmt.Println("disabled")
				}
			},
		},
	)
}

func setAutostart(on bool) error {
	mgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if on {
		role := "send"
		if cfg.General.Role == config.RoleReceiver {
			role = "receive"
		}
		entry, err := autostart.NewEntry(role, "--config", mgr.Path())
		if err != nil {
			return err
		}
		if err := autostart.Enable(entry); err != nil {
			return err
		}
	} else if err := autostart.Disable(); err != nil {
		return err
	}
	mgr.Update(func(c *config.Config) { c.General.StartOnBoot = on })
	return mgr.Save()
}
