package seplos

// PageForWordCount 按响应寄存器数量判定页。
// 协议的读响应不携带页标识，主包/单体/参数页只能靠长度区分；
// 若未来固件提供显式页标签，仅需替换这里的判定。
func PageForWordCount(n int) (Page, bool) {
	switch n {
	case MainRegisters:
		return PageMain, true
	case CellRegisters:
		return PageCell, true
	case ParamRegisters:
		return PageParam, true
	}
	return 0, false
}

// DecodePage 将整页寄存器按字段表解码为 key→工程值。
// 只处理有寄存器支撑的字段；派生字段见 DeriveMain。
func DecodePage(p Page, words []uint16) map[string]float64 {
	out := make(map[string]float64)
	for _, fd := range fieldTable {
		if fd.Page != p || fd.Derived() {
			continue
		}
		if fd.Register >= len(words) {
			continue
		}
		out[fd.Key()] = DecodeValue(fd, words[fd.Register])
	}
	return out
}

// DeriveMain 主包页解码完成后计算派生字段，写入 values。
// 功率取放电为正的约定，所以在电流×总压上取负。
func DeriveMain(values map[string]float64) {
	current, okC := values["current"]
	packV, okV := values["pack_voltage"]
	if okC && okV {
		values["power"] = -roundTo(current*packV, 2)
	}
	maxV, okMax := values["max_cell_voltage"]
	minV, okMin := values["min_cell_voltage"]
	if okMax && okMin {
		values["cell_delta"] = roundTo(maxV-minV, 3)
	}
}
