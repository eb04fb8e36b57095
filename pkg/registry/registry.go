package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"primescan/pkg/contract"
	asieve "primescan/plugins/accelerator/sieve"
	omr "primescan/plugins/oracle/millerrabin"
	oset "primescan/plugins/oracle/set"
	otrial "primescan/plugins/oracle/trial"
	sfs "primescan/plugins/source/filesystem"
	wconsole "primescan/plugins/writer/console"
	wfs "primescan/plugins/writer/filesystem"
	wsqlite "primescan/plugins/writer/sqlite"
)

// Stdout 是 console 写出器的目标（CLI 测试时替换）。
var Stdout io.Writer = os.Stdout

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: options: %v", contract.ErrInvalidInput, err)
	}
	return nil
}

// NewSource 工厂签名：接收原样 JSON Options。
type NewSource func(raw json.RawMessage) (contract.SourceOpener, error)

// NewOracle 工厂签名：接收原样 JSON Options。
type NewOracle func(raw json.RawMessage) (contract.Oracle, error)

// NewAccelerator 工厂签名：接收原样 JSON Options。
type NewAccelerator func(raw json.RawMessage) (contract.Accelerator, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.ResultWriter, error)

// Source 工厂注册表（显式、零反射）。
var Source = map[string]NewSource{
	// fs: ReadAt 位置读的定宽整数文件
	"fs": func(raw json.RawMessage) (contract.SourceOpener, error) {
		var opts sfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sfs.New(&opts), nil
	},
}

// Oracle 工厂注册表。
var Oracle = map[string]NewOracle{
	// millerrabin: 64 位确定性 Miller–Rabin（默认）
	"millerrabin": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts omr.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return omr.New(&opts), nil
	},
	// trial: 试除法参考实现
	"trial": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts otrial.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return otrial.New(&opts), nil
	},
	// set: 显式素数表
	"set": func(raw json.RawMessage) (contract.Oracle, error) {
		var opts oset.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return oset.New(&opts)
	},
}

// Accelerator 工厂注册表。
var Accelerator = map[string]NewAccelerator{
	// sieve: 奇数位图埃氏筛，可选 zstd 缓存
	"sieve": func(raw json.RawMessage) (contract.Accelerator, error) {
		var opts asieve.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return asieve.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: JSON 报告文件（原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.ResultWriter, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// sqlite: 追加到 scans 历史表
	"sqlite": func(raw json.RawMessage) (contract.ResultWriter, error) {
		var opts wsqlite.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wsqlite.New(&opts)
	},
	// console: 结果文本块打印到 Stdout
	"console": func(raw json.RawMessage) (contract.ResultWriter, error) {
		var opts wconsole.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wconsole.NewTo(Stdout, &opts), nil
	},
}
