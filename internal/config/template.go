package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"primescan/plugins/accelerator/sieve"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入留空（由命令行位置参数提供）；
// - 结果同时打印到控制台并以 JSON 写入 ./out；
// - 选项给出全部键与中性默认值，便于按需修改。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Oracle.CacheSize = 0
	cfg.Accelerator = Accelerator{Lower: 0, Upper: sieve.DefaultUpper}
	cfg.Components.Writers = []string{"console", "fs"}
	cfg.Options = Options{
		Source:      map[string]any{"buf_size": 65536},
		Oracle:      map[string]any{},
		Accelerator: map[string]any{"cache_path": "", "segment_size": 0},
		Writers: map[string]map[string]any{
			"console": {"verbose": true},
			"fs": {
				"output_dir": "out",
				"file_name":  "{name}.result.json",
				"atomic":     true,
				"indent":     true,
			},
		},
	}
	return cfg
}

// MarshalYAML 以 YAML 编码配置（init-config 与诊断输出共用）。
func MarshalYAML(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Template 返回带说明头的默认模板 YAML。
func Template() ([]byte, error) {
	b, err := MarshalYAML(DefaultTemplateConfig())
	if err != nil {
		return nil, err
	}
	header := []byte("# primescan configuration (generated by init-config)\n" +
		"# precedence: flags > PRIMESCAN_* env > this file > defaults\n")
	return append(header, b...), nil
}

// WriteTemplate 在 path 写入默认模板；文件已存在时返回错误，不覆盖。
func WriteTemplate(path string) error {
	b, err := Template()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("config: %s already exists, not overwriting: %w", path, err)
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}
