// Package autostart registers edgelink to start at login.
package autostart

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"edgelink/internal/logging"
)

// Label identifies the login item on every platform.
const Label = "com.edgelink.agent"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{html .Exec}}</string>
{{- range .Args}}
        <string>{{html .}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const linuxDesktopEntry = `[Desktop Entry]
Type=Application
Name=edgelink
Comment=Share keyboard and mouse over a direct link
Exec={{.CommandLine}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

var (
	plistTemplate   = template.Must(template.New("plist").Parse(macLaunchAgentPlist))
	desktopTemplate = template.Must(template.New("desktop").Parse(linuxDesktopEntry))
)

// Entry is the command started at login.
type Entry struct {
	Label string
	Exec  string
	Args  []string
}

// NewEntry returns an Entry for the running executable with args.
func NewEntry(args ...string) (Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return Entry{}, errors.Wrap(err, "failed to get executable path")
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	return Entry{Label: Label, Exec: execPath, Args: args}, nil
}

// CommandLine quotes the entry as a single command line.
func (e Entry) CommandLine() string {
	parts := make([]string, 0, len(e.Args)+1)
	for _, s := range append([]string{e.Exec}, e.Args...) {
		if strings.ContainsAny(s, " \t\"") {
			s = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Plist renders the macOS LaunchAgent.
func (e Entry) Plist() ([]byte, error) {
	return render(plistTemplate, e)
}

// Desktop renders the XDG autostart entry.
func (e Entry) Desktop() ([]byte, error) {
	return render(desktopTemplate, e)
}

func render(t *template.Template, e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, e); err != nil {
		return nil, errors.Wrapf(err, "render %s", t.Name())
	}
	return buf.Bytes(), nil
}

// Enable enables auto-start on login
func Enable(e Entry) error {
	log := logging.MustGetLogger("autostart")
	switch runtime.GOOS {
	case "darwin", "linux":
		path, err := entryPath()
		if err != nil {
			return err
		}
		if err := writeEntry(path, e); err != nil {
			return err
		}
		log.Infof("Installed login item %s", path)
		return nil
	case "windows":
		if err := enableWindows(e); err != nil {
			return err
		}
		log.Info("Installed login item in the Run registry key")
		return nil
	default:
		return errors.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Disable disables auto-start on login
func Disable() error {
	switch runtime.GOOS {
	case "darwin", "linux":
		path, err := entryPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to remove login item")
		}
		return nil
	case "windows":
		return disableWindows()
	default:
		return errors.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	switch runtime.GOOS {
	case "darwin", "linux":
		path, err := entryPath()
		if err != nil {
			return false
		}
		_, err = os.Stat(path)
		return err == nil
	case "windows":
		return isEnabledWindows()
	default:
		return false
	}
}

func entryPath() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "LaunchAgents", Label+".plist"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "autostart", "edgelink.desktop"), nil
}

// writeEntry renders the file format matching path's extension.
func writeEntry(path string, e Entry) error {
	var (
		data []byte
		err  error
	)
	if filepath.Ext(path) == ".plist" {
		data, err = e.Plist()
	} else {
		data, err = e.Desktop()
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create autostart directory")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "failed to write login item")
}
