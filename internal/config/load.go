package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"primescan/internal/scan"
	"primescan/pkg/contract"
)

const (
	// EnvPrefix: 环境变量前缀，键中的 "." 以 "_" 代替（PRIMESCAN_LOGGING_LEVEL）。
	EnvPrefix = "PRIMESCAN"
	// EnvConfigFile: 未给出 --config 时读取的配置文件路径变量。
	EnvConfigFile = "PRIMESCAN_CONFIG_FILE"
	// DefaultFile: 工作目录下的默认配置文件（存在时读取）。
	DefaultFile = "primescan.yaml"

	DefaultElementWidth = 6
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Input 不设默认（必须由参数/文件/ENV 提供）。
func Defaults() Config {
	return Config{
		ElementWidth:    DefaultElementWidth,
		BlockBytes:      scan.DefaultBlockBytes,
		SerialThreshold: scan.SerialThreshold,
		Composites:      scan.PolicySkip.String(),
		Logging:         Logging{Level: "info"},
		Components: Components{
			Source:  "fs",
			Oracle:  "millerrabin",
			Writers: []string{"console"},
		},
	}
}

// setDefaults 把 Defaults 注册为 viper 的最低优先级层。
// 每个标量键都需要默认值，否则 AutomaticEnv 无法覆盖该键。
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("input", d.Input)
	v.SetDefault("threads", d.Threads)
	v.SetDefault("element_width", d.ElementWidth)
	v.SetDefault("block_bytes", d.BlockBytes)
	v.SetDefault("serial_threshold", d.SerialThreshold)
	v.SetDefault("no_stitch", d.NoStitch)
	v.SetDefault("composites", d.Composites)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("oracle.cache_size", d.Oracle.CacheSize)
	v.SetDefault("accelerator.lower", d.Accelerator.Lower)
	v.SetDefault("accelerator.upper", d.Accelerator.Upper)
	v.SetDefault("components.source", d.Components.Source)
	v.SetDefault("components.oracle", d.Components.Oracle)
	v.SetDefault("components.accelerator", d.Components.Accelerator)
	v.SetDefault("components.writers", d.Components.Writers)
}

// ResolveFile 决定配置文件：显式路径 > PRIMESCAN_CONFIG_FILE > ./primescan.yaml（若存在）。
// 返回空串表示只用默认值与 ENV/旗标。
func ResolveFile(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p
	}
	if st, err := os.Stat(DefaultFile); err == nil && !st.IsDir() {
		return DefaultFile
	}
	return ""
}

// Load 按优先级叠加：默认值 → 配置文件 → ENV → 已绑定到 v 的命令行旗标。
// v 为 nil 时新建；调用方可在传入前用 BindPFlag 绑定旗标或用 Set 写入覆盖值。
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := ResolveFile(path); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType(configType(file))
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %v: %w", file, err, contract.ErrInvalidInput)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %v: %w", err, contract.ErrInvalidInput)
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Composites = strings.TrimSpace(cfg.Composites)
	return cfg, nil
}

// configType 按扩展名选择解析器；未知扩展名按 YAML 处理。
func configType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}
