package seplos

import "errors"

// 功能码
const (
	FuncReadRegisters  = 0x04 // 读寄存器
	FuncWriteRegisters = 0x10 // 写寄存器
)

// 寄存器页基址与长度（BMSv3 固定布局）
const (
	MainBase  uint16 = 0x1000 // 主包信息页（PIA）
	CellBase  uint16 = 0x1100 // 单体信息页（PIB）
	ParamBase uint16 = 0x1300 // 参数页（PRM）

	MainRegisters  = 18  // 0x12
	CellRegisters  = 26  // 0x1A
	ParamRegisters = 105 // 0x69

	// ParamPageCode 单字段读写时使用的参数页页码（0x13xx 的高字节）
	ParamPageCode = 0x13
)

// 串口线路参数固定：19200 8N1
const (
	BaudRate = 19200
	DataBits = 8
)

var (
	ErrFrameTooShort = errors.New("frame too short")
	ErrMalformed     = errors.New("malformed frame")
	ErrWrongDevice   = errors.New("frame for another device")
)

// BuildRequest 组装请求帧体：地址 + 功能码 + 各参数按16位大端展开。
// 不含校验和，校验和由发送通道统一追加。
func BuildRequest(addr, fn byte, words ...uint16) []byte {
	out := make([]byte, 0, 2+2*len(words))
	out = append(out, addr, fn)
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w&0xFF))
	}
	return out
}

// ReadPageRequest 构造整页读请求
func ReadPageRequest(addr byte, p Page) []byte {
	switch p {
	case PageCell:
		return BuildRequest(addr, FuncReadRegisters, CellBase, CellRegisters)
	case PageParam:
		return BuildRequest(addr, FuncReadRegisters, ParamBase, ParamRegisters)
	default:
		return BuildRequest(addr, FuncReadRegisters, MainBase, MainRegisters)
	}
}

// ReadFieldRequest 构造参数页单寄存器读请求
func ReadFieldRequest(addr byte, reg byte) []byte {
	return []byte{addr, FuncReadRegisters, ParamPageCode, reg, 0x00, 0x01}
}

// WriteFieldRequest 构造参数页单寄存器写请求（功能码0x10，单寄存器两字节数据）
func WriteFieldRequest(addr byte, reg byte, raw uint16) []byte {
	return []byte{addr, FuncWriteRegisters, ParamPageCode, reg, 0x00, 0x01, 0x02, byte(raw >> 8), byte(raw & 0xFF)}
}

// DeviceID 返回帧首的设备地址字节
func DeviceID(frame []byte) byte {
	return frame[0]
}

// SplitWords 按16位大端切分payload
func SplitWords(payload []byte) []uint16 {
	words := make([]uint16, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		words = append(words, uint16(payload[i])<<8|uint16(payload[i+1]))
	}
	return words
}

// ParseReadResponse 校验读响应帧结构，返回数据区切分出的寄存器字。
// 帧结构：[addr, 0x04, byteCount, data..., crcLo, crcHi]，总长必须恰好
// 等于 3 + byteCount + 2，否则视为畸形帧。
func ParseReadResponse(frame []byte) ([]uint16, error) {
	if len(frame) < 3 {
		return nil, ErrFrameTooShort
	}
	byteCount := int(frame[2])
	if len(frame) != 3+byteCount+2 {
		return nil, ErrMalformed
	}
	return SplitWords(frame[3 : 3+byteCount]), nil
}
