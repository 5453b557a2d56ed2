package seplos

import "testing"

func TestKeyDerivation(t *testing.T) {
	fd := FieldDescriptor{Name: "Battery high voltage recovery"}
	if got := fd.Key(); got != "battery_high_voltage_recovery" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestDecimals(t *testing.T) {
	cases := []struct {
		precision float64
		want      int
	}{
		{1, 0},
		{0.1, 1},
		{0.01, 2},
		{0.001, 3},
	}
	for _, tc := range cases {
		fd := FieldDescriptor{Precision: tc.precision}
		if got := fd.Decimals(); got != tc.want {
			t.Errorf("Decimals(%v) = %d, want %d", tc.precision, got, tc.want)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	voltage := FieldDescriptor{Name: "Pack Voltage", Precision: 0.01, Factor: 0.01}
	if got := DecodeValue(voltage, 3281); got != 32.81 {
		t.Errorf("voltage = %v, want 32.81", got)
	}

	// 有符号：电流为负表示放电
	current := FieldDescriptor{Name: "Current", Precision: 0.1, Factor: 0.01, Signed: true}
	if got := DecodeValue(current, 65036); got != -5.0 {
		t.Errorf("current = %v, want -5", got)
	}

	// 开尔文转摄氏度
	temp := FieldDescriptor{Name: "Average Cell Temp", Precision: 0.1, Factor: 0.1, Offset: -273.15}
	if got := DecodeValue(temp, 2982); got != 25.1 {
		t.Errorf("temp = %v, want 25.1", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// 显示精度等于缩放步进且无偏移的字段，解码后再编码必须还原
	// 同一个寄存器字。温度类字段带 -273.15 偏移，显示值会落在
	// 两个寄存器字的正中间，不满足严格可逆。
	for _, fd := range Table() {
		if fd.Derived() || fd.Offset != 0 || fd.Precision != fd.Factor {
			continue
		}
		for _, raw := range []uint16{0, 1, 1000, 3281, 32767, 40000, 65535} {
			v := DecodeValue(fd, raw)
			back, err := EncodeValue(fd, v)
			if err != nil {
				t.Fatalf("%s: encode(%v): %v", fd.Key(), v, err)
			}
			if back != raw {
				t.Fatalf("%s: raw %d -> %v -> %d", fd.Key(), raw, v, back)
			}
		}
	}
}

func TestEncodeValueOutOfRange(t *testing.T) {
	fd := FieldDescriptor{Name: "x", Precision: 0.01, Factor: 0.01}
	if _, err := EncodeValue(fd, 700.0); err == nil {
		t.Fatal("expected range error")
	}
	if _, err := EncodeValue(fd, -1.0); err == nil {
		t.Fatal("expected range error for negative unsigned")
	}
}
