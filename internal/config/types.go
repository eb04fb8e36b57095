package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知键在解析期失败。
type Config struct {
	Input string `mapstructure:"input" yaml:"input" json:"input"`
	// Threads: 工作线程数；0 表示自动（小文件串行，否则 NumCPU）。
	Threads      int `mapstructure:"threads" yaml:"threads" json:"threads"`
	ElementWidth int `mapstructure:"element_width" yaml:"element_width" json:"element_width"`
	// BlockBytes: 扫描子块字节数（取消检查粒度）。
	BlockBytes      int   `mapstructure:"block_bytes" yaml:"block_bytes" json:"block_bytes"`
	SerialThreshold int64 `mapstructure:"serial_threshold" yaml:"serial_threshold" json:"serial_threshold"`
	// NoStitch: 关闭跨分块拼接，只比较各分块内部最优链。
	NoStitch bool `mapstructure:"no_stitch" yaml:"no_stitch" json:"no_stitch"`
	// Composites: 合数处理策略 skip|break。
	Composites string `mapstructure:"composites" yaml:"composites" json:"composites"`

	Logging     Logging     `mapstructure:"logging" yaml:"logging" json:"logging"`
	Oracle      Oracle      `mapstructure:"oracle" yaml:"oracle" json:"oracle"`
	Accelerator Accelerator `mapstructure:"accelerator" yaml:"accelerator" json:"accelerator"`

	// 组件名选择（空则使用默认名）。
	Components Components `mapstructure:"components" yaml:"components" json:"components"`
	// 各组件 Options 子树，装配时重新编码为 JSON 交给工厂严格解析。
	Options Options `mapstructure:"options" yaml:"options" json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

// Oracle: 判定器的编排层参数（与具体实现无关）。
type Oracle struct {
	// CacheSize: LRU 记忆容量；0 关闭。
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
}

// Accelerator: 预计算表覆盖区间（仅在 components.accelerator 非空时生效）。
type Accelerator struct {
	Lower uint64 `mapstructure:"lower" yaml:"lower" json:"lower"`
	Upper uint64 `mapstructure:"upper" yaml:"upper" json:"upper"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Source      string   `mapstructure:"source" yaml:"source" json:"source"`
	Oracle      string   `mapstructure:"oracle" yaml:"oracle" json:"oracle"`
	Accelerator string   `mapstructure:"accelerator" yaml:"accelerator" json:"accelerator"`
	Writers     []string `mapstructure:"writers" yaml:"writers" json:"writers"`
}

// Options: 各组件的选项子树。Writers 以 writer 名为键。
type Options struct {
	Source      map[string]any            `mapstructure:"source" yaml:"source" json:"source,omitempty"`
	Oracle      map[string]any            `mapstructure:"oracle" yaml:"oracle" json:"oracle,omitempty"`
	Accelerator map[string]any            `mapstructure:"accelerator" yaml:"accelerator" json:"accelerator,omitempty"`
	Writers     map[string]map[string]any `mapstructure:"writers" yaml:"writers" json:"writers,omitempty"`
}
