package seplos

import (
	"errors"
	"math"
)

// 写路径错误。除 ErrNoChange（无事可做）外都意味着请求被拒绝。
var (
	ErrUnknownField    = errors.New("unknown field")
	ErrNotWritable     = errors.New("field is not writable")
	ErrNoBaseline      = errors.New("no cached value to sanity-check against, read the field first")
	ErrNoChange        = errors.New("value unchanged")
	ErrZeroGuard       = errors.New("refusing to write from or to zero")
	ErrChangeTooLarge  = errors.New("relative change exceeds 20%")
	ErrValueOutOfRange = errors.New("encoded value does not fit 16 bits")
)

// maxRelativeChangePct 安全门允许的最大相对变化（百分比）
const maxRelativeChangePct = 20

// CheckWrite 参数写安全门。写错保护参数可能毁掉电池，
// 因此默认要求：先读出旧值、新旧值都非零、相对变化不超过20%。
func CheckWrite(old, value float64) error {
	if old == value {
		return ErrNoChange
	}
	if value == 0 || old == 0 {
		return ErrZeroGuard
	}
	ratio := old / value
	if value > old {
		ratio = value / old
	}
	if (ratio-1)*100 > maxRelativeChangePct {
		return ErrChangeTooLarge
	}
	return nil
}

// EncodeValue 工程值 → 原始寄存器字：减 Offset、除 Factor、
// 负值按16位二进制补码回卷，超出16位范围报错。
// 除法结果取最近整数，保证 DecodeValue 的逆运算在字段精度内无损。
func EncodeValue(fd FieldDescriptor, value float64) (uint16, error) {
	v := value - fd.Offset
	v /= fd.Factor
	v = math.Round(v)
	if fd.Signed && v < 0 {
		v += 65536
	}
	if v > 0xFFFF || v < 0 {
		return 0, ErrValueOutOfRange
	}
	return uint16(v), nil
}
