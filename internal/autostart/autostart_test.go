package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlist(t *testing.T) {
	e := Entry{Label: Label, Exec: "/Applications/edgelink", Args: []string{"send", "--config", "a&b.json"}}
	data, err := e.Plist()
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, "<string>com.edgelink.agent</string>")
	assert.Contains(t, s, "        <string>/Applications/edgelink</string>\n        <string>send</string>\n        <string>--config</string>\n        <string>a&amp;b.json</string>\n    </array>")
}

func TestDesktop(t *testing.T) {
	e := Entry{Label: Label, Exec: "/opt/edge link/edgelink", Args: []string{"receive"}}
	data, err := e.Desktop()
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exec=\"/opt/edge link/edgelink\" receive\n")
	assert.Contains(t, string(data), "[Desktop Entry]\n")
}

func TestCommandLine(t *testing.T) {
	e := Entry{Exec: `C:\Program Files\edgelink.exe`, Args: []string{"send"}}
	assert.Equal(t, `"C:\Program Files\edgelink.exe" send`, e.CommandLine())
	assert.Equal(t, "/usr/bin/edgelink", Entry{Exec: "/usr/bin/edgelink"}.CommandLine())
}

func TestWriteEntry(t *testing.T) {
	dir := t.TempDir()
	e := Entry{Label: Label, Exec: "/usr/bin/edgelink", Args: []string{"send"}}

	desktop := filepath.Join(dir, "autostart", "edgelink.desktop")
	require.NoError(t, writeEntry(desktop, e))
	data, err := os.ReadFile(desktop)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exec=/usr/bin/edgelink send")

	plist := filepath.Join(dir, Label+".plist")
	require.NoError(t, writeEntry(plist, e))
	data, err = os.ReadFile(plist)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<key>RunAtLoad</key>")
}
