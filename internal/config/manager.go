package config

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESALLOC"

// Manager loads the configuration and coordinates reloads. Precedence is
// defaults, then the YAML file, then environment variables.
type Manager struct {
	logger     *zap.Logger
	configPath string

	config   *Config
	configMu sync.RWMutex

	validator *Validator
	envLoader *EnvLoader
	watcher   *Watcher

	callbacksMu sync.Mutex
	callbacks   []func(*Config)
}

// NewManager creates a manager and performs the initial load. An empty
// configPath uses defaults and the environment only.
func NewManager(logger *zap.Logger, configPath string) (*Manager, error) {
	m := &Manager{
		logger:     logger.Named("config"),
		configPath: configPath,
		validator:  NewValidator(),
		envLoader:  NewEnvLoader(EnvPrefix),
	}

	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("initial config load failed: %w", err)
	}
	return m, nil
}

// Load rebuilds the configuration from all sources. On failure the current
// configuration is kept.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if m.configPath != "" {
		data, err := os.ReadFile(m.configPath)
		switch {
		case os.IsNotExist(err):
			m.logger.Debug("Config file not found, using defaults", zap.String("path", m.configPath))
		case err != nil:
			return fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	if err := m.envLoader.Load(cfg); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := m.validator.Validate(cfg); err != nil {
		return err
	}

	m.configMu.Lock()
	m.config = cfg
	m.configMu.Unlock()

	m.notifyChange(cfg)

	m.logger.Info("Configuration loaded", zap.String("path", m.configPath))
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.configMu.RLock()
	defer m.configMu.RUnlock()

	cfgCopy := *m.config
	cfgCopy.API.AllowedOrigins = append([]string(nil), m.config.API.AllowedOrigins...)
	return &cfgCopy
}

// OnChange registers a callback run after every successful load, in
// registration order.
func (m *Manager) OnChange(callback func(*Config)) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) notifyChange(cfg *Config) {
	m.callbacksMu.Lock()
	callbacks := append(([]func(*Config))(nil), m.callbacks...)
	m.callbacksMu.Unlock()

	for _, callback := range callbacks {
		c := *cfg
		callback(&c)
	}
}

// StartWatcher reloads the configuration whenever the file changes.
func (m *Manager) StartWatcher() error {
	if m.configPath == "" {
		return fmt.Errorf("no config file to watch")
	}

	watcher, err := NewWatcher(m.logger, m.configPath)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Start(func() {
		if err := m.Load(); err != nil {
			m.logger.Error("Failed to hot-reload configuration", zap.Error(err))
		}
	}); err != nil {
		watcher.Stop()
		return err
	}
	m.watcher = watcher
	return nil
}

// StopWatcher stops the file watcher.
func (m *Manager) StopWatcher() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}
