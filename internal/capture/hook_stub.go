//go:build !windows && !darwin

package capture

type stubHook struct{}

// NewSystemHook returns a hook that always fails to install.
func NewSystemHook() Hook {
	return stubHook{}
}

func (stubHook) Install(func(RawEvent) bool) error { return ErrUnsupported }
func (stubHook) Reenable() error                   { return nil }
func (stubHook) Uninstall() error                  { return nil }
