package seplos

import "fmt"

// f 表行构造，按 页/名称/设备类/单位/精度/寄存器/乘数/偏移/有符号 排列，
// 末尾可选 writable 标记（只有参数页使用）。
func f(p Page, name, devClass, unit string, precision float64, register int, factor, offset float64, signed bool, writable ...bool) FieldDescriptor {
	w := len(writable) > 0 && writable[0]
	return FieldDescriptor{
		Page: p, Name: name, DeviceClass: devClass, Unit: unit,
		Precision: precision, Register: register, Factor: factor,
		Offset: offset, Signed: signed, Writable: w,
	}
}

// fieldTable BMSv3 全量寄存器表。主包/单体页来自 Seplos 的 modbus 文档，
// 参数页没有公开文档，寄存器地址与缩放是对官方上位机流量逆向得到的。
// 随意修改这些参数可能损坏电池甚至引发火灾，写路径必须走安全门。
var fieldTable = []FieldDescriptor{
	f(PageMain, "Pack Voltage", "voltage", "V", 0.01, 0, 0.01, 0, false),
	f(PageMain, "Current", "current", "A", 0.1, 1, 0.01, 0, true),
	f(PageMain, "Remaining Capacity", "", "Ah", 0.1, 2, 0.01, 0, false),
	f(PageMain, "Total Capacity", "", "Ah", 0.1, 3, 0.01, 0, false),
	f(PageMain, "Total Discharge Capacity", "", "Ah", 0.1, 4, 10, 0, false),
	f(PageMain, "SOC", "", "%", 0.1, 5, 0.1, 0, false),
	f(PageMain, "SOH", "", "%", 0.1, 6, 0.1, 0, false),
	f(PageMain, "Cycles", "", "cycles", 1, 7, 1, 0, false),
	f(PageMain, "Average Cell Voltage", "voltage", "V", 0.001, 8, 0.001, 0, false),
	f(PageMain, "Average Cell Temp", "temperature", "°C", 0.1, 9, 0.1, -273.15, false),
	f(PageMain, "Max Cell Voltage", "voltage", "V", 0.001, 10, 0.001, 0, false),
	f(PageMain, "Min Cell Voltage", "voltage", "V", 0.001, 11, 0.001, 0, false),
	f(PageMain, "Max Cell Temp", "temperature", "°C", 0.1, 12, 0.1, -273.15, false),
	f(PageMain, "Min Cell Temp", "temperature", "°C", 0.1, 13, 0.1, -273.15, false),
	f(PageMain, "MaxDisCurt", "current", "A", 0.1, 15, 1, 0, false),
	f(PageMain, "MaxChgCurt", "current", "A", 0.1, 16, 1, 0, false),
	// 派生字段：不占寄存器，主包页解码完成后计算
	f(PageMain, "Power", "power", "W", 0.1, -1, 1, 0, false),
	f(PageMain, "Cell Delta", "voltage", "V", 0.001, -1, 1, 0, false),

	f(PageCell, "Cell Temp 1", "temperature", "°C", 0.1, 16, 0.1, -273.15, false),
	f(PageCell, "Cell Temp 2", "temperature", "°C", 0.1, 17, 0.1, -273.15, false),
	f(PageCell, "Cell Temp 3", "temperature", "°C", 0.1, 18, 0.1, -273.15, false),
	f(PageCell, "Cell Temp 4", "temperature", "°C", 0.1, 19, 0.1, -273.15, false),

	f(PageParam, "Battery high voltage recovery", "voltage", "V", 0.01, 0x02, 0.01, 0, false, true),
	f(PageParam, "Battery high voltage alarm", "voltage", "V", 0.01, 0x03, 0.01, 0, false, true),
	f(PageParam, "Battery over voltage recovery", "voltage", "V", 0.01, 0x04, 0.01, 0, false, true),
	f(PageParam, "Battery over voltage protection", "voltage", "V", 0.01, 0x05, 0.01, 0, false, true),
	f(PageParam, "Battery low voltage recovery", "voltage", "V", 0.01, 0x06, 0.01, 0, false, true),
	f(PageParam, "Battery low voltage alarm", "voltage", "V", 0.01, 0x07, 0.01, 0, false, true),
	f(PageParam, "Battery under voltage recovery", "voltage", "V", 0.01, 0x08, 0.01, 0, false, true),
	f(PageParam, "Battery under voltage protection", "voltage", "V", 0.01, 0x09, 0.01, 0, false, true),
	f(PageParam, "Cell high voltage recovery", "voltage", "V", 0.001, 0x0A, 0.001, 0, false, true),
	f(PageParam, "Cell high voltage alarm", "voltage", "V", 0.001, 0x0B, 0.001, 0, false, true),
	f(PageParam, "Cell over voltage recovery", "voltage", "V", 0.001, 0x0C, 0.001, 0, false, true),
	f(PageParam, "Cell over voltage protection", "voltage", "V", 0.001, 0x0D, 0.001, 0, false, true),
	f(PageParam, "Cell low voltage recovery", "voltage", "V", 0.001, 0x0E, 0.001, 0, false, true),
	f(PageParam, "Cell low voltage alarm", "voltage", "V", 0.001, 0x0F, 0.001, 0, false, true),
	f(PageParam, "Cell under voltage recovery", "voltage", "V", 0.001, 0x10, 0.001, 0, false, true),
	f(PageParam, "Cell under voltage protection", "voltage", "V", 0.001, 0x11, 0.001, 0, false, true),
	f(PageParam, "Cell under voltage failure", "voltage", "V", 0.001, 0x12, 0.001, 0, false, true),
	f(PageParam, "Cell diff pressure protection", "voltage", "V", 0.001, 0x13, 0.001, 0, false, true),
	f(PageParam, "Diff pressure protection recovery", "voltage", "V", 0.001, 0x14, 0.001, 0, false, true),
	f(PageParam, "Charge over current recovery", "current", "A", 1, 0x15, 1, 0, false, true),
	f(PageParam, "Charge over current alarm", "current", "A", 1, 0x16, 1, 0, false, true),
	f(PageParam, "Charge over current protection", "current", "A", 1, 0x17, 1, 0, false, true),
	f(PageParam, "Charge over current delay", "", "s", 0.1, 0x18, 0.1, 0, false, true),
	f(PageParam, "Secondary charge over current protection", "current", "A", 1, 0x19, 1, 0, false, true),
	f(PageParam, "Secondary charge over current delay", "", "s", 1, 0x1A, 1, 0, false, true),
	f(PageParam, "Discharge over current recovery", "current", "A", 1, 0x1B, 1, 0, true, true),
	f(PageParam, "Discharge over current alarm", "current", "A", 1, 0x1C, 1, 0, true, true),
	f(PageParam, "Discharge over current protection", "current", "A", 1, 0x1D, 1, 0, true, true),
	f(PageParam, "Discharge over current delay", "", "s", 0.1, 0x1E, 0.1, 0, false, true),
	f(PageParam, "Secondary discharge over current protection", "current", "A", 1, 0x1F, 1, 0, true, true),
	f(PageParam, "Secondary discharge over current delay", "", "s", 1, 0x20, 1, 0, false, true),
	f(PageParam, "Over current recovery delay", "", "s", 0.1, 0x23, 0.1, 0, false, true),
	f(PageParam, "Number of over current lock times", "", "", 0.1, 0x24, 1, 0, false, true),
	f(PageParam, "Pluse current limiting current", "current", "A", 0.1, 0x26, 1, 0, false, true),
	f(PageParam, "Precharge over time", "", "s", 0.1, 0x2E, 0.1, 0, false, true),
	f(PageParam, "Charge high temperature recovery", "temperature", "°C", 0.1, 0x2F, 0.1, -273.15, false, true),
	f(PageParam, "Charge high temperature alarm", "temperature", "°C", 0.1, 0x30, 0.1, -273.15, false, true),
	f(PageParam, "Charge over temperature recovery", "temperature", "°C", 0.1, 0x31, 0.1, -273.15, false, true),
	f(PageParam, "Charge over temperature protection", "temperature", "°C", 0.1, 0x32, 0.1, -273.15, false, true),
	f(PageParam, "Charge low temperature recovery", "temperature", "°C", 0.1, 0x33, 0.1, -273.15, false, true),
	f(PageParam, "Charge low temperature alarm", "temperature", "°C", 0.1, 0x34, 0.1, -273.15, false, true),
	f(PageParam, "Charge under temperature recovery", "temperature", "°C", 0.1, 0x35, 0.1, -273.15, false, true),
	f(PageParam, "Charge under temperature protection", "temperature", "°C", 0.1, 0x36, 0.1, -273.15, false, true),
	f(PageParam, "Discharge high temperature recovery", "temperature", "°C", 0.1, 0x37, 0.1, -273.15, false, true),
	f(PageParam, "Discharge high temperature alarm", "temperature", "°C", 0.1, 0x38, 0.1, -273.15, false, true),
	f(PageParam, "Discharge over temperature recovery", "temperature", "°C", 0.1, 0x39, 0.1, -273.15, false, true),
	f(PageParam, "Discharge over temperature protection", "temperature", "°C", 0.1, 0x3A, 0.1, -273.15, false, true),
	f(PageParam, "Discharge low temperature recovery", "temperature", "°C", 0.1, 0x3B, 0.1, -273.15, false, true),
	f(PageParam, "Discharge low temperature alarm", "temperature", "°C", 0.1, 0x3C, 0.1, -273.15, false, true),
	f(PageParam, "Discharge under temperature recovery", "temperature", "°C", 0.1, 0x3D, 0.1, -273.15, false, true),
	f(PageParam, "Discharge under temperature protection", "temperature", "°C", 0.1, 0x3E, 0.1, -273.15, false, true),
	f(PageParam, "High ambient temperature recovery", "temperature", "°C", 0.1, 0x3F, 0.1, -273.15, false, true),
	f(PageParam, "High ambient temperature alarm", "temperature", "°C", 0.1, 0x40, 0.1, -273.15, false, true),
	f(PageParam, "Over ambient temperature recovery", "temperature", "°C", 0.1, 0x41, 0.1, -273.15, false, true),
	f(PageParam, "Over ambient temperature protection", "temperature", "°C", 0.1, 0x42, 0.1, -273.15, false, true),
	f(PageParam, "Low ambient temperature recovery", "temperature", "°C", 0.1, 0x43, 0.1, -273.15, false, true),
	f(PageParam, "Low ambient temperature alarm", "temperature", "°C", 0.1, 0x44, 0.1, -273.15, false, true),
	f(PageParam, "Under ambient temperature recovery", "temperature", "°C", 0.1, 0x45, 0.1, -273.15, false, true),
	f(PageParam, "Under ambient temperature protection", "temperature", "°C", 0.1, 0x46, 0.1, -273.15, false, true),
	f(PageParam, "Power high temperature recovery", "temperature", "°C", 0.1, 0x47, 0.1, -273.15, false, true),
	f(PageParam, "Power high temperature alarm", "temperature", "°C", 0.1, 0x48, 0.1, -273.15, false, true),
	f(PageParam, "Power over temperature recovery", "temperature", "°C", 0.1, 0x49, 0.1, -273.15, false, true),
	f(PageParam, "Power over temperature protection", "temperature", "°C", 0.1, 0x4A, 0.1, -273.15, false, true),
	f(PageParam, "Temperature regulate stop", "temperature", "°C", 0.1, 0x4B, 0.1, -273.15, false, true),
	f(PageParam, "Temperature regulate open", "temperature", "°C", 0.1, 0x4C, 0.1, -273.15, false, true),
	f(PageParam, "Equalization high temperature prohibition", "temperature", "°C", 0.1, 0x4D, 0.1, -273.15, false, true),
	f(PageParam, "Equalization low temperature prohibition", "temperature", "°C", 0.1, 0x4E, 0.1, -273.15, false, true),
	f(PageParam, "Static equalization timing", "", "", 0.1, 0x4F, 1, 0, false, true),
	f(PageParam, "Equalization open voltage", "voltage", "V", 0.001, 0x50, 0.001, 0, false, true),
	f(PageParam, "Equalization open difference pressure", "voltage", "V", 0.001, 0x51, 0.001, 0, false, true),
	f(PageParam, "Equalization stop difference pressure", "voltage", "V", 0.001, 0x52, 0.001, 0, false, true),
	f(PageParam, "Power supply SOC", "", "%", 0.1, 0x53, 0.1, 0, false, true),
	f(PageParam, "SOC low recovery", "", "%", 0.1, 0x54, 0.1, 0, false, true),
	f(PageParam, "SOC low alarm", "", "%", 0.1, 0x55, 0.1, 0, false, true),
	f(PageParam, "SOC protection recovery", "", "%", 0.1, 0x56, 0.1, 0, false, true),
	f(PageParam, "SOC low protection", "", "%", 0.1, 0x57, 0.1, 0, false, true),
	f(PageParam, "Rated battery capacity", "", "Ah", 0.01, 0x58, 0.01, 0, false, true),
	f(PageParam, "Stand-by time", "", "h", 0.1, 0x5B, 1, 0, false, true),
	f(PageParam, "Forced output delay", "", "s", 0.1, 0x5C, 0.1, 0, false, true),
	f(PageParam, "Compensation site 1", "", "", 0.1, 0x5F, 1, 0, false, true),
	f(PageParam, "Compensation site 1 resistance", "", "", 0.1, 0x60, 1, 0, false, true),
	f(PageParam, "Compensating site 2", "", "", 0.1, 0x61, 1, 0, false, true),
	f(PageParam, "Compensation site 2 resistance", "", "", 0.1, 0x62, 1, 0, false, true),
	f(PageParam, "Cell diff pressure alarm", "", "", 0.1, 0x63, 1, 0, false, true),
	f(PageParam, "Diff pressure alarm recovery", "", "", 0.1, 0x64, 1, 0, false, true),
	f(PageParam, "Charging request voltage", "voltage", "V", 0.01, 0x65, 0.01, 0, false, true),
	f(PageParam, "Charging request current", "current", "A", 0.1, 0x66, 1, 0, false, true),
	f(PageParam, "Discharge request current", "current", "A", 0.1, 0x67, 1, 0, true, true),
}

// fieldIndex 键到描述符的预建索引，避免每次读写线性扫表
var fieldIndex map[string]FieldDescriptor

func init() {
	// 单体电压 Cell 1..16 位于单体页寄存器 0..15
	for i := 1; i <= 16; i++ {
		fieldTable = append(fieldTable,
			f(PageCell, fmt.Sprintf("Cell %d", i), "voltage", "V", 0.001, i-1, 0.001, 0, false))
	}

	fieldIndex = make(map[string]FieldDescriptor, len(fieldTable))
	for _, fd := range fieldTable {
		k := fd.Key()
		if _, dup := fieldIndex[k]; dup {
			panic("seplos: duplicate field key " + k)
		}
		if fd.Writable && fd.Page != PageParam {
			panic("seplos: writable field outside param page: " + k)
		}
		fieldIndex[k] = fd
	}
}

// Table 返回全量字段表（只读，调用方不得修改）
func Table() []FieldDescriptor {
	return fieldTable
}

// Lookup 按键查找字段描述
func Lookup(key string) (FieldDescriptor, bool) {
	fd, ok := fieldIndex[key]
	return fd, ok
}

// ReadableKeys 全部可读字段键，按表序
func ReadableKeys() []string {
	keys := make([]string, 0, len(fieldTable))
	for _, fd := range fieldTable {
		keys = append(keys, fd.Key())
	}
	return keys
}

// WritableKeys 全部可写字段键，按表序
func WritableKeys() []string {
	var keys []string
	for _, fd := range fieldTable {
		if fd.Writable {
			keys = append(keys, fd.Key())
		}
	}
	return keys
}
