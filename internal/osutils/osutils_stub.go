//go:build !windows

package osutils

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule does nothing outside Windows.
func EnsureFirewallRule(int) error {
	return nil
}
