package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Memory      MemoryConfig              `json:"memory"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	KnowledgeDir  string `json:"knowledge_dir"`
	// Provider selects which entry of Providers backs the assistant.
	Provider string `json:"provider"`
	// EncryptMessages enables AES-GCM encryption of stored chat content.
	EncryptMessages bool `json:"encrypt_messages"`

	MinWorkers int `json:"min_workers"`
	MaxWorkers int `json:"max_workers"`
	QueueSize  int `json:"queue_size"`
	// WorkerIdleTimeout is in minutes.
	WorkerIdleTimeout int `json:"worker_idle_timeout"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// MemoryConfig tunes the short-term memory window kept per chat.
type MemoryConfig struct {
	// KeepLimit bounds the raw rows kept per chat between compactions.
	KeepLimit int `json:"keep_limit"`
	// SummaryTrigger is the message count at which compaction fires.
	SummaryTrigger int `json:"summary_trigger"`
	// STMWindow is how many recent messages survive a compaction.
	STMWindow int `json:"stm_window"`
}

const (
	DefaultKeepLimit      = 200
	DefaultSummaryTrigger = 20
	DefaultSTMWindow      = 15
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}

	cfg.Memory = cfg.Memory.withDefaults()
	return &cfg, nil
}

func (m MemoryConfig) withDefaults() MemoryConfig {
	if m.KeepLimit <= 0 {
		m.KeepLimit = DefaultKeepLimit
	}
	if m.SummaryTrigger <= 0 {
		m.SummaryTrigger = DefaultSummaryTrigger
	}
	if m.STMWindow <= 0 {
		m.STMWindow = DefaultSTMWindow
	}
	return m
}
