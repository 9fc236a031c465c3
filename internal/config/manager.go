package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
)

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	subs       []func(*Config)
	watching   bool
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/vaprobe/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vaprobe", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile means
// DefaultPath. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	for key, val := range defaultValues() {
		v.SetDefault(key, val)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	m := &Manager{configPath: path, v: v}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config loaded")
	return m, nil
}

func (m *Manager) lockFile() *flock.Flock {
	return flock.New(m.configPath + ".lock")
}

// load reads the file under a shared lock and replaces the current config.
func (m *Manager) load() error {
	fl := m.lockFile()
	if err := fl.RLock(); err != nil {
		return fmt.Errorf("failed to lock config: %w", err)
	}
	defer fl.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return m.refreshLocked()
}

// refreshLocked decodes viper's merged view (defaults, file, bound flags).
func (m *Manager) refreshLocked() error {
	cfg, err := m.decodeLocked()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

func (m *Manager) decodeLocked() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Library.Paths == nil {
		cfg.Library.Paths = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	return &cfg, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	cfg.Library.Paths = slices.Clone(m.config.Library.Paths)
	return &cfg
}

// GetViper exposes the underlying viper instance for key lookups.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Path returns the config file path.
func (m *Manager) Path() string {
	return m.configPath
}

// Keys lists every settable key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaultValues()))
	for k := range defaultValues() {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// BindFlag lets a command line flag override key. Flags that were not
// changed on the command line leave the file value in place.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	if _, ok := defaultValues()[key]; !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.v.BindPFlag(key, flag); err != nil {
		return err
	}
	return m.refreshLocked()
}

// GetValue returns the current value of key.
func (m *Manager) GetValue(key string) (any, error) {
	if _, ok := defaultValues()[key]; !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key), nil
}

// Set parses raw according to the type of key, validates the result and
// saves it.
func (m *Manager) Set(key, raw string) error {
	def, ok := defaultValues()[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	val, err := parseValue(def, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	m.mu.RLock()
	tmp := viper.New()
	err = tmp.MergeConfigMap(m.v.AllSettings())
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	tmp.Set(key, val)

	var cfg Config
	if err := tmp.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return m.Update(&cfg)
}

func parseValue(def any, raw string) (any, error) {
	switch def.(type) {
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", raw)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean: %s (use: true or false)", raw)
		}
		return b, nil
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration: %s", raw)
		}
		return d, nil
	case []string:
		if strings.TrimSpace(raw) == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	default:
		return raw, nil
	}
}

// Update validates cfg, replaces the current configuration and saves it.
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	c := *cfg
	if c.Library.Paths == nil {
		c.Library.Paths = []string{}
	}
	m.config = &c
	m.mu.Unlock()
	if err := m.Save(); err != nil {
		return err
	}
	return m.load()
}

// Save writes the current configuration under an exclusive lock. The file is
// replaced atomically.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	log := logger.WithComponent("config")
	log.Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fl := m.lockFile()
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to lock config: %w", err)
	}
	defer fl.Unlock()

	tmp, err := os.CreateTemp(configDir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	log.Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Watch calls fn with the new configuration whenever the file changes on
// disk. Invalid edits are logged and the previous configuration is kept.
func (m *Manager) Watch(fn func(*Config)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	start := !m.watching
	m.watching = true
	m.mu.Unlock()

	if !start {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		if err := m.load(); err != nil {
			log.Warn().Err(err).Str("event", e.Op.String()).Msg("Ignoring config change")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")

		m.mu.RLock()
		subs := slices.Clone(m.subs)
		m.mu.RUnlock()
		cfg := m.Get()
		for _, sub := range subs {
			sub(cfg)
		}
	})
	m.v.WatchConfig()
}
