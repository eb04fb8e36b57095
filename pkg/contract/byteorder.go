package contract

import "encoding/binary"

// CheckHostByteOrder 确认宿主为小端序。输入文件按小端编码，
// 在其他宿主上须先失败而非静默得到错误结果。
func CheckHostByteOrder() error {
	if binary.NativeEndian.Uint16([]byte{1, 0}) != 1 {
		return ErrUnsupportedByteOrder
	}
	return nil
}
