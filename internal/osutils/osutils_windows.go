//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"edgelink/internal/logging"
)

const swHide = 0

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	return err == nil && member
}

// EnsureFirewallRule makes sure inbound TCP on port is allowed, asking for
// elevation through UAC when the process is not elevated.
func EnsureFirewallRule(port int) error {
	log := logging.MustGetLogger("osutils")

	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+FirewallRuleName).CombinedOutput()
	if err == nil && ruleMatches(string(output), port) {
		log.Debugf("Firewall rule %q already admits port %d", FirewallRuleName, port)
		return nil
	}

	script := firewallScript(port)
	if IsAdmin() {
		if out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput(); err != nil {
			return errors.Wrapf(err, "failed to create firewall rule: %s", out)
		}
		log.Infof("Created firewall rule for port %d", port)
		return nil
	}

	log.Info("Requesting elevation to create the firewall rule")
	verb, _ := syscall.UTF16PtrFromString("runas")
	exe, _ := syscall.UTF16PtrFromString("powershell.exe")
	args, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", script))
	if err := windows.ShellExecute(0, verb, exe, args, nil, swHide); err != nil {
		return errors.Wrap(err, "failed to launch elevated powershell")
	}
	return nil
}
