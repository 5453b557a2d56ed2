package seplos

import (
	"math"
	"strings"
)

// Page 寄存器页
type Page uint8

const (
	PageMain  Page = iota // 主包信息（电压/电流/SOC等）
	PageCell              // 单体电压与温度
	PageParam             // 可编辑保护参数
)

func (p Page) String() string {
	switch p {
	case PageMain:
		return "main"
	case PageCell:
		return "cell"
	case PageParam:
		return "param"
	}
	return "unknown"
}

// FieldDescriptor 字段描述：一个16位寄存器到工程值的静态映射。
// Register 为页内偏移（参数页为寄存器地址）；-1 表示派生字段，
// 不对应物理寄存器，由解码阶段计算得出。
type FieldDescriptor struct {
	Page        Page
	Name        string
	DeviceClass string  // Home Assistant device class，可为空
	Unit        string  // 工程单位，可为空
	Precision   float64 // 最小十进制步进，如0.01
	Register    int
	Factor      float64 // 原始值乘数
	Offset      float64 // 乘数之后的加数（如开尔文转摄氏度 -273.15）
	Signed      bool    // 原始值按16位二进制补码解释
	Writable    bool    // 仅参数页字段可写
}

// Key 由字段名确定性导出的键（小写下划线），全表唯一
func (f FieldDescriptor) Key() string {
	return strings.ReplaceAll(strings.ToLower(f.Name), " ", "_")
}

// Decimals 由 Precision 推出的小数位数（0.01 → 2）
func (f FieldDescriptor) Decimals() int {
	return int(math.Round(-math.Log10(f.Precision)))
}

// Derived 是否为派生字段（无寄存器支撑）
func (f FieldDescriptor) Derived() bool {
	return f.Register < 0
}

// roundTo 四舍五入到 n 位小数
func roundTo(v float64, n int) float64 {
	p := math.Pow10(n)
	return math.Round(v*p) / p
}

// DecodeValue 原始寄存器字 → 工程值：
// 符号解释 → 乘 Factor → 加 Offset → 按 Precision 取整
func DecodeValue(f FieldDescriptor, raw uint16) float64 {
	v := float64(raw)
	if f.Signed && raw > 32767 {
		v = float64(int32(raw) - 65536)
	}
	v *= f.Factor
	v += f.Offset
	return roundTo(v, f.Decimals())
}
