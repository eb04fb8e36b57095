package contract

import "context"

// ResultWriter: 将扫描报告持久化/展示到目标介质（文件系统/数据库/控制台）。
// 约束：
//  1. 单次扫描调用一次；
//  2. ctx 取消需尽快返回（取消后的部分结果仍会以新 ctx 写出）；
//  3. 错误直接上抛（不做重试）。
type ResultWriter interface {
	Write(ctx context.Context, rep Report) error
}
