// Package config 负责加载 reactorlog 的配置文件。
// 支持 YAML 与 TOML 两种格式，按扩展名选择解析器，之后叠加环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// 环境变量名。
const (
	// EnvSendMail 非空时强制开启邮件通知。
	EnvSendMail = "SENDMAIL"
	// EnvBackend 覆盖 build.backend。
	EnvBackend = "REACTORLOG_LANG"
)

// DefaultFileNames 是未显式指定配置文件时在当前目录依次查找的文件名。
var DefaultFileNames = []string{"reactorlog.yaml", "reactorlog.yml", "reactorlog.toml"}

// Config 是完整配置。
type Config struct {
	Build       BuildConfig       `yaml:"build" toml:"build"`
	Retry       RetryConfig       `yaml:"retry" toml:"retry"`
	Attribution AttributionConfig `yaml:"attribution" toml:"attribution"`
	Mail        MailConfig        `yaml:"mail" toml:"mail"`
	Report      ReportConfig      `yaml:"report" toml:"report"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// BuildConfig 描述构建命令。
type BuildConfig struct {
	Command string `yaml:"command" toml:"command"`
	// Clean 为 true 时先执行 CleanCommand。
	Clean        bool     `yaml:"clean" toml:"clean"`
	CleanCommand string   `yaml:"clean_command" toml:"clean_command"`
	Backend      string   `yaml:"backend" toml:"backend"`
	WorkDir      string   `yaml:"work_dir" toml:"work_dir"`
	Name         string   `yaml:"name" toml:"name"`
	Env          []string `yaml:"env" toml:"env"`
}

// RetryConfig 描述失败模块重试。
type RetryConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Command string `yaml:"command" toml:"command"`
}

// AttributionConfig 描述作者归属。
type AttributionConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Workers int    `yaml:"workers" toml:"workers"`
	Git     string `yaml:"git" toml:"git"`
}

// MailConfig 描述失败通知邮件。
type MailConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// DryRun 为 true 时只记录日志不连接服务器。
	DryRun   bool     `yaml:"dry_run" toml:"dry_run"`
	Addr     string   `yaml:"addr" toml:"addr"`
	From     string   `yaml:"from" toml:"from"`
	Cc       []string `yaml:"cc" toml:"cc"`
	Username string   `yaml:"username" toml:"username"`
	Password string   `yaml:"password" toml:"password"`
	Subject  string   `yaml:"subject" toml:"subject"`
	Timeout  string   `yaml:"timeout" toml:"timeout"`
}

// ReportConfig 描述 scan 命令的输出。
type ReportConfig struct {
	Format string `yaml:"format" toml:"format"` // table, json
	Output string `yaml:"output" toml:"output"`
}

// LoggingConfig 描述日志。
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // console, json
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Command:      "mvn install -fn -U",
			CleanCommand: "mvn clean -fn -U -T 5",
			Backend:      "java",
			WorkDir:      ".",
		},
		Retry: RetryConfig{
			Command: "mvn install -fn -U",
		},
		Attribution: AttributionConfig{
			Enabled: true,
			Workers: 4,
			Git:     "git",
		},
		Mail: MailConfig{
			Addr:    "localhost:25",
			Subject: "<%s_BUILD 通知> 编译失败, 请尽快处理",
			Timeout: "30s",
		},
		Report: ReportConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load 从文件加载配置。path 为空时只使用默认值与环境变量；
// 文件不存在时同样返回默认值。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Discover 在目录中查找默认配置文件，找不到时返回空串。
func Discover(dir string) string {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := os.Stat(path); err != nil {
			return err
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return err
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q (use .yaml, .yml or .toml)", ext)
	}
}

// applyEnvOverrides 叠加环境变量覆盖。
func (c *Config) applyEnvOverrides() {
	if os.Getenv(EnvSendMail) != "" {
		c.Mail.Enabled = true
	}
	if backend := strings.TrimSpace(os.Getenv(EnvBackend)); backend != "" {
		c.Build.Backend = backend
	}
}

// MailTimeout 解析邮件超时，非法或缺省时为 30 秒。
func (c *Config) MailTimeout() time.Duration {
	d, err := time.ParseDuration(c.Mail.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ValidFormats 是 report.format 允许的取值。
var ValidFormats = []string{"table", "json"}

// Validate 校验配置。
func (c *Config) Validate() error {
	validFormat := false
	for _, f := range ValidFormats {
		if c.Report.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid report format: %s (valid: %v)", c.Report.Format, ValidFormats)
	}

	if c.Attribution.Workers < 0 {
		return fmt.Errorf("invalid attribution workers: %d", c.Attribution.Workers)
	}

	if c.Retry.Enabled && strings.TrimSpace(c.Retry.Command) == "" {
		return errors.New("retry enabled but retry.command is empty")
	}

	if c.Mail.Enabled && !c.Mail.DryRun {
		if c.Mail.Addr == "" {
			return errors.New("mail enabled but mail.addr is empty")
		}
		if c.Mail.From == "" {
			return errors.New("mail enabled but mail.from is empty")
		}
	}

	return nil
}
