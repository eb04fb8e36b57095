package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"primescan/internal/diag"
	"primescan/internal/pipeline"
	"primescan/internal/scan"
	"primescan/pkg/contract"
	"primescan/pkg/registry"
)

func invalid(format string, a ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(a, contract.ErrInvalidInput)...)
}

// Validate 对最小必要边界做静态校验（不访问文件系统）。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Input) == "" {
		return invalid("input not set")
	}
	return ValidateComponents(cfg)
}

// ValidateComponents 校验除输入以外的全部键（供不需要输入文件的子命令使用）。
func ValidateComponents(cfg Config) error {
	if cfg.Threads < 0 {
		return invalid("threads must be >= 0 (0 = auto)")
	}
	if cfg.ElementWidth < 1 || cfg.ElementWidth > 8 {
		return invalid("element_width %d out of range [1,8]", cfg.ElementWidth)
	}
	if cfg.BlockBytes < cfg.ElementWidth {
		return invalid("block_bytes %d smaller than one element", cfg.BlockBytes)
	}
	if cfg.SerialThreshold < 0 {
		return invalid("serial_threshold must be >= 0")
	}
	if _, err := scan.ParsePolicy(effName(cfg.Composites, Defaults().Composites)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Logging.Level != "" && !diag.ValidLevel(cfg.Logging.Level) {
		return invalid("logging.level %q must be debug|info|warn|error", cfg.Logging.Level)
	}
	if cfg.Oracle.CacheSize < 0 {
		return invalid("oracle.cache_size must be >= 0")
	}

	d := Defaults()
	if name := effName(cfg.Components.Source, d.Components.Source); registry.Source[name] == nil {
		return invalid("source %q not registered", name)
	}
	if name := effName(cfg.Components.Oracle, d.Components.Oracle); registry.Oracle[name] == nil {
		return invalid("oracle %q not registered", name)
	}
	if name := cfg.Components.Accelerator; name != "" {
		if registry.Accelerator[name] == nil {
			return invalid("accelerator %q not registered", name)
		}
		if cfg.Accelerator.Lower > cfg.Accelerator.Upper {
			return invalid("accelerator.lower %d > accelerator.upper %d", cfg.Accelerator.Lower, cfg.Accelerator.Upper)
		}
	}
	seen := map[string]bool{}
	for _, name := range writerNames(cfg) {
		if registry.Writer[name] == nil {
			return invalid("writer %q not registered", name)
		}
		if seen[name] {
			return invalid("writer %q listed twice", name)
		}
		seen[name] = true
	}
	for name := range cfg.Options.Writers {
		if !seen[name] {
			return invalid("options.writers.%s set but writer not enabled", name)
		}
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只把选项子树编码为 JSON。
// 调用方负责在运行结束后调用 Components.Close。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	var comp pipeline.Components

	src, err := source(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp.Source = src

	on := effName(cfg.Components.Oracle, d.Components.Oracle)
	raw, err := encode(cfg.Options.Oracle)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, invalid("options.oracle: %v", err)
	}
	if comp.Oracle, err = registry.Oracle[on](raw); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("oracle %s: %w", on, err)
	}

	if an := cfg.Components.Accelerator; an != "" {
		if raw, err = encode(cfg.Options.Accelerator); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, invalid("options.accelerator: %v", err)
		}
		if comp.Accelerator, err = registry.Accelerator[an](raw); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("accelerator %s: %w", an, err)
		}
	}

	for _, wn := range writerNames(cfg) {
		if raw, err = encode(cfg.Options.Writers[wn]); err != nil {
			_ = comp.Close()
			return pipeline.Components{}, pipeline.Settings{}, invalid("options.writers.%s: %v", wn, err)
		}
		w, err := registry.Writer[wn](raw)
		if err != nil {
			_ = comp.Close()
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer %s: %w", wn, err)
		}
		comp.Writers = append(comp.Writers, w)
	}

	pol, _ := scan.ParsePolicy(effName(cfg.Composites, d.Composites))
	set := pipeline.Settings{
		Input:           cfg.Input,
		ElementWidth:    cfg.ElementWidth,
		Threads:         cfg.Threads,
		BlockBytes:      cfg.BlockBytes,
		SerialThreshold: cfg.SerialThreshold,
		Stitch:          !cfg.NoStitch,
		Composites:      pol,
		CacheSize:       cfg.Oracle.CacheSize,
		AccelLower:      cfg.Accelerator.Lower,
		AccelUpper:      cfg.Accelerator.Upper,
	}
	return comp, set, nil
}

// writerNames 返回生效的写出器列表（空则使用默认）。
func writerNames(cfg Config) []string {
	if len(cfg.Components.Writers) == 0 {
		return Defaults().Components.Writers
	}
	out := make([]string, 0, len(cfg.Components.Writers))
	for _, n := range cfg.Components.Writers {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// encode 把选项子树重新编码为 JSON；空子树得到 nil（工厂使用零值选项）。
func encode(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}

// AssembleOracle 只构造判定器与（可选）加速器，供 list/query 等工具命令使用。
// 返回的 Accelerator 尚未 Init。
func AssembleOracle(cfg Config) (contract.Oracle, contract.Accelerator, error) {
	if err := ValidateComponents(cfg); err != nil {
		return nil, nil, err
	}
	on := effName(cfg.Components.Oracle, Defaults().Components.Oracle)
	raw, err := encode(cfg.Options.Oracle)
	if err != nil {
		return nil, nil, invalid("options.oracle: %v", err)
	}
	orc, err := registry.Oracle[on](raw)
	if err != nil {
		return nil, nil, fmt.Errorf("oracle %s: %w", on, err)
	}
	an := cfg.Components.Accelerator
	if an == "" {
		return orc, nil, nil
	}
	if raw, err = encode(cfg.Options.Accelerator); err != nil {
		return nil, nil, invalid("options.accelerator: %v", err)
	}
	acc, err := registry.Accelerator[an](raw)
	if err != nil {
		return nil, nil, fmt.Errorf("accelerator %s: %w", an, err)
	}
	return orc, acc, nil
}

// AssembleSource 只构造数据源打开器（list 使用）。
func AssembleSource(cfg Config) (contract.SourceOpener, error) {
	if err := ValidateComponents(cfg); err != nil {
		return nil, err
	}
	return source(cfg)
}

func source(cfg Config) (contract.SourceOpener, error) {
	sn := effName(cfg.Components.Source, Defaults().Components.Source)
	raw, err := encode(cfg.Options.Source)
	if err != nil {
		return nil, invalid("options.source: %v", err)
	}
	src, err := registry.Source[sn](raw)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", sn, err)
	}
	return src, nil
}
