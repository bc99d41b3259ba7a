//go:build !windows

package autostart

func enableWindows(Entry) error { return nil }

func disableWindows() error { return nil }

func isEnabledWindows() bool { return false }
