// Package config provides configuration management for edgelink.
package config

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"edgelink/internal/capture"
	"edgelink/internal/edge"
	"edgelink/internal/hotkey"
	"edgelink/internal/keymap"
	"edgelink/internal/logging"
)

// Roles.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Config represents the application configuration
type Config struct {
	General GeneralConfig `json:"general"`
	Link    LinkConfig    `json:"link"`
	Edge    EdgeConfig    `json:"edge"`
	Capture CaptureConfig `json:"capture"`
	Inject  InjectConfig  `json:"inject"`
	Status  StatusConfig  `json:"status"`
	Log     LogConfig     `json:"log"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Role is "sender" (captures and forwards) or "receiver" (injects)
	Role string `json:"role"`

	// TargetEdge is the screen edge that hands control to the peer
	TargetEdge edge.Edge `json:"target_edge"`

	// ReturnHotkey takes control back locally (e.g. "Esc", "Ctrl+Alt+Esc")
	ReturnHotkey string `json:"return_hotkey"`

	// ShowTray shows the system tray icon in the sender role
	ShowTray bool `json:"show_tray"`

	// StartOnBoot determines if the app starts at login
	StartOnBoot bool `json:"start_on_boot"`
}

// LinkConfig describes the point-to-point link
type LinkConfig struct {
	// BindAddr is the address the sender listens on
	BindAddr string `json:"bind_addr"`

	// PeerAddr is the address the receiver dials
	PeerAddr string `json:"peer_addr"`

	Port int `json:"port"`

	// Interface optionally names the link interface (e.g. "usb0", "en7")
	Interface string `json:"interface,omitempty"`

	// Subnet identifies the link by address when Interface is not set
	Subnet string `json:"subnet"`

	ProbeIntervalMS  int `json:"probe_interval_ms"`
	RetryDelayMS     int `json:"retry_delay_ms"`
	ConnectTimeoutMS int `json:"connect_timeout_ms"`

	// ReadTimeoutMS drops a silent connection on the receiver, 0 disables
	ReadTimeoutMS int `json:"read_timeout_ms"`

	// ManageFirewall opens the link port in the Windows firewall
	ManageFirewall bool `json:"manage_firewall"`
}

// EdgeConfig tunes edge detection
type EdgeConfig struct {
	Threshold      float64 `json:"threshold"`
	DebounceMS     int     `json:"debounce_ms"`
	PollIntervalMS int     `json:"poll_interval_ms"`
}

// CaptureConfig tunes the capture engine
type CaptureConfig struct {
	// Mode is "pinned" or "direct"
	Mode      string  `json:"mode"`
	Inset     float64 `json:"inset"`
	QueueSize int     `json:"queue_size"`
}

// InjectConfig tunes the receiver side
type InjectConfig struct {
	// KeyCodes is the key code space the sender uses ("native", "mac", "evdev", "vk")
	KeyCodes string `json:"key_codes"`

	ScrollScale float64 `json:"scroll_scale"`

	// ReturnOnEdge hands control back when the pointer reaches the edge
	// opposite the target edge
	ReturnOnEdge bool `json:"return_on_edge"`
}

// StatusConfig controls the local status server
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`

	// Token is an optional bearer token for status requests
	Token string `json:"token,omitempty"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `json:"level"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Role:         RoleSender,
			TargetEdge:   edge.Right,
			ReturnHotkey: "Esc",
			ShowTray:     true,
		},
		Link: LinkConfig{
			BindAddr:         "192.168.100.1",
			PeerAddr:         "192.168.100.1",
			Port:             9876,
			Subnet:           "192.168.100.0/24",
			ProbeIntervalMS:  5000,
			RetryDelayMS:     2000,
			ConnectTimeoutMS: 5000,
			ReadTimeoutMS:    30000,
			ManageFirewall:   true,
		},
		Edge: EdgeConfig{
			Threshold:      edge.DefaultThreshold,
			DebounceMS:     int(edge.DefaultMinInterval / time.Millisecond),
			PollIntervalMS: 16,
		},
		Capture: CaptureConfig{
			Mode:      "pinned",
			Inset:     0.01,
			QueueSize: 1024,
		},
		Inject: InjectConfig{
			KeyCodes:     "native",
			ScrollScale:  1,
			ReturnOnEdge: true,
		},
		Status: StatusConfig{
			Enabled: true,
			Addr:    "127.0.0.1:18765",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	switch c.General.Role {
	case RoleSender, RoleReceiver:
	default:
		return errors.Errorf("general.role must be %q or %q, got %q", RoleSender, RoleReceiver, c.General.Role)
	}
	if c.General.TargetEdge == edge.None {
		return errors.New("general.target_edge is required")
	}
	if _, err := hotkey.Parse(c.General.ReturnHotkey); err != nil {
		return errors.Wrap(err, "general.return_hotkey")
	}
	if c.Link.Port <= 0 || c.Link.Port > 65535 {
		return errors.Errorf("link.port %d is out of range", c.Link.Port)
	}
	if c.Link.Interface == "" && c.Link.Subnet == "" {
		return errors.New("link.interface or link.subnet is required")
	}
	if c.Link.Subnet != "" {
		if _, _, err := net.ParseCIDR(c.Link.Subnet); err != nil {
			return errors.Wrap(err, "link.subnet")
		}
	}
	for name, v := range map[string]int{
		"link.probe_interval_ms":  c.Link.ProbeIntervalMS,
		"link.retry_delay_ms":     c.Link.RetryDelayMS,
		"link.connect_timeout_ms": c.Link.ConnectTimeoutMS,
		"edge.poll_interval_ms":   c.Edge.PollIntervalMS,
	} {
		if v <= 0 {
			return errors.Errorf("%s must be positive", name)
		}
	}
	if c.Link.ReadTimeoutMS < 0 || c.Edge.DebounceMS < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Edge.Threshold < 0 {
		return errors.New("edge.threshold must not be negative")
	}
	if _, err := capture.ParseCursorMode(c.Capture.Mode); err != nil {
		return err
	}
	if c.Capture.Inset <= 0 || c.Capture.Inset >= 0.5 {
		return errors.Errorf("capture.inset %g must be in (0, 0.5)", c.Capture.Inset)
	}
	if _, err := keymap.ParseSpace(c.Inject.KeyCodes); err != nil {
		return errors.Wrap(err, "inject.key_codes")
	}
	return nil
}

// ListenAddr is the host:port the sender binds.
func (l LinkConfig) ListenAddr() string {
	return net.JoinHostPort(l.BindAddr, strconv.Itoa(l.Port))
}

// DialAddr is the host:port the receiver connects to.
func (l LinkConfig) DialAddr() string {
	return net.JoinHostPort(l.PeerAddr, strconv.Itoa(l.Port))
}

func (l LinkConfig) ProbeInterval() time.Duration  { return ms(l.ProbeIntervalMS) }
func (l LinkConfig) RetryDelay() time.Duration     { return ms(l.RetryDelayMS) }
func (l LinkConfig) ConnectTimeout() time.Duration { return ms(l.ConnectTimeoutMS) }
func (l LinkConfig) ReadTimeout() time.Duration    { return ms(l.ReadTimeoutMS) }
func (e EdgeConfig) Debounce() time.Duration       { return ms(e.DebounceMS) }
func (e EdgeConfig) PollInterval() time.Duration   { return ms(e.PollIntervalMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager for the per-user config file.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager for an explicit file.
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Path returns the configuration file path.
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "edgelink")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "edgelink")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "edgelink")
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk. A missing file leaves the
// defaults in place.
func (m *Manager) Load() error {
	m.mu.Lock()
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "failed to read config")
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "failed to parse %s", m.configPath)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "invalid config %s", m.configPath)
	}
	m.config = cfg
	fn := m.onChanged
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	logging.MustGetLogger("config").Debugf("Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set replaces the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	fn := m.onChanged
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Update applies fn to the configuration under the lock
func (m *Manager) Update(fn func(c *Config)) {
	m.mu.Lock()
	fn(m.config)
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
