package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformerrors "cuishou-server-go/internal/platform/errors"
)

// 配置文件查找顺序，取第一个存在的
var configPaths = []string{".config.yaml", "config.yaml"}

// Loader 加载YAML配置并叠加环境变量
type Loader struct {
	useDotEnv bool
	path      string
}

func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Load 读取配置文件，缺省值打底，环境变量最后覆盖密钥类字段
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("未找到 .env 文件，使用系统环境变量")
		}
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		for _, p := range configPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "loader.Load", "读取配置文件失败", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, "loader.Load", "解析配置文件失败", err)
		}
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 密钥只从环境读取，不落配置文件
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
		if cfg.ASR.APIKey == "" {
			cfg.ASR.APIKey = v
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ASR_API_KEY"); v != "" {
		cfg.ASR.APIKey = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Server.Auth.Secret = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("服务端口非法: %d", cfg.Server.Port))
	}
	if cfg.Web.Enabled && (cfg.Web.Port <= 0 || cfg.Web.Port > 65535) {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("Web端口非法: %d", cfg.Web.Port))
	}
	if cfg.VAD.EnergyThreshold <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate", "VAD能量阈值必须大于0")
	}
	if cfg.Audio.ChunkSize <= 0 {
		return platformerrors.New(platformerrors.KindConfig, "loader.validate", "音频块大小必须大于0")
	}
	switch cfg.History.Type {
	case "", "memory", "redis", "sqlite":
	default:
		return platformerrors.New(platformerrors.KindConfig, "loader.validate",
			fmt.Sprintf("未知的历史存储类型: %s", cfg.History.Type))
	}
	return nil
}
