package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Load(t *testing.T) {
	// 创建临时配置文件
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
server:
  ip: "127.0.0.1"
  port: 8080
log:
  log_level: "debug"
  log_dir: "/tmp/logs"
  log_file: "test.log"
web:
  enabled: true
  port: 8081
vad:
  energy_threshold: 0.02
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithPath(configFile)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.IP != "127.0.0.1" {
		t.Errorf("expected server IP 127.0.0.1, got %s", cfg.Server.IP)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.VAD.EnergyThreshold != 0.02 {
		t.Errorf("expected vad threshold 0.02, got %v", cfg.VAD.EnergyThreshold)
	}
	// 未覆盖的字段保持默认值
	if cfg.Audio.OutputSampleRate != 24000 {
		t.Errorf("expected default output sample rate 24000, got %d", cfg.Audio.OutputSampleRate)
	}
	if cfg.Turn.Timeout.Seconds() != 25 {
		t.Errorf("expected default turn timeout 25s, got %v", cfg.Turn.Timeout)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "invalid server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid web port",
			mutate:  func(c *Config) { c.Web.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero vad threshold",
			mutate:  func(c *Config) { c.VAD.EnergyThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "unknown history backend",
			mutate:  func(c *Config) { c.History.Type = "etcd" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			err := loader.validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
