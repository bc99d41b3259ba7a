// Package osutils holds operating system integration the sender needs
// outside of input handling.
package osutils

import (
	"fmt"
	"strconv"
	"strings"
)

// FirewallRuleName is the display name of the inbound rule for the link port.
const FirewallRuleName = "edgelink link"

// firewallScript replaces any existing rule with one that admits TCP on port.
// The rule is not tied to the executable path, so rebuilt binaries keep working.
func firewallScript(port int) string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; "+
			"New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		FirewallRuleName, FirewallRuleName, port,
	)
}

// ruleMatches reports whether netsh output shows an allow rule for port.
func ruleMatches(output string, port int) bool {
	if !strings.Contains(output, FirewallRuleName) || !strings.Contains(output, "Allow") {
		return false
	}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "LocalPort" {
			continue
		}
		for _, p := range strings.Split(value, ",") {
			if strings.TrimSpace(p) == strconv.Itoa(port) {
				return true
			}
		}
	}
	return false
}
