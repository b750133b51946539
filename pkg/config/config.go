package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server ServerConfig `json:"server"`
	UI     UIConfig     `json:"ui"`
	Log    LogConfig    `json:"log"`
}

type ServerConfig struct {
	// BaseURL is the chat backend root; the widget consumes
	// POST /chat, GET /chat_history and POST /clear_history under it.
	BaseURL string `json:"base_url" env:"MATHCHAT_SERVER_BASE_URL"`
}

type UIConfig struct {
	Title    string `json:"title" env:"MATHCHAT_UI_TITLE"`
	Greeting string `json:"greeting" env:"MATHCHAT_UI_GREETING"`
	Mouse    bool   `json:"mouse" env:"MATHCHAT_UI_MOUSE"`
}

type LogConfig struct {
	Level string `json:"level" env:"MATHCHAT_LOG_LEVEL"`
	File  string `json:"file" env:"MATHCHAT_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
		},
		UI: UIConfig{
			Title:    "mathchat",
			Greeting: "Hi! Ask me anything about data science and I'll do my best to help.",
			Mouse:    true,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(stateDir(), "mathchat.log"),
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Support full config from env var (for containers / CI)
	if cfgJSON := os.Getenv("MATHCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing MATHCHAT_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(stateDir(), "config.json")
}

// SessionPath returns where the backend session cookie is persisted.
func SessionPath() string {
	return filepath.Join(stateDir(), "session.json")
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mathchat"
	}
	return filepath.Join(home, ".mathchat")
}
