package seplos

import "testing"

func TestPageForWordCount(t *testing.T) {
	cases := []struct {
		n    int
		page Page
		ok   bool
	}{
		{18, PageMain, true},
		{26, PageCell, true},
		{105, PageParam, true},
		{2, 0, false},
		{17, 0, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		page, ok := PageForWordCount(tc.n)
		if ok != tc.ok || (ok && page != tc.page) {
			t.Errorf("PageForWordCount(%d) = %v,%v want %v,%v", tc.n, page, ok, tc.page, tc.ok)
		}
	}
}

func TestDecodePageMain(t *testing.T) {
	words := make([]uint16, MainRegisters)
	words[0] = 3281  // pack voltage 32.81 V
	words[1] = 65036 // current -5.0 A
	words[5] = 855   // soc 85.5 %
	words[10] = 3300 // max cell 3.300 V
	words[11] = 3250 // min cell 3.250 V

	values := DecodePage(PageMain, words)
	if values["pack_voltage"] != 32.81 {
		t.Errorf("pack_voltage = %v", values["pack_voltage"])
	}
	if values["current"] != -5.0 {
		t.Errorf("current = %v", values["current"])
	}
	if values["soc"] != 85.5 {
		t.Errorf("soc = %v", values["soc"])
	}
	// 派生字段在 DecodePage 阶段还不存在
	if _, ok := values["power"]; ok {
		t.Error("power present before DeriveMain")
	}

	DeriveMain(values)
	if values["power"] != 164.05 {
		t.Errorf("power = %v, want 164.05", values["power"])
	}
	if values["cell_delta"] != 0.05 {
		t.Errorf("cell_delta = %v, want 0.05", values["cell_delta"])
	}
}

func TestDecodePageCell(t *testing.T) {
	words := make([]uint16, CellRegisters)
	words[0] = 3281  // cell 1
	words[15] = 3275 // cell 16
	words[16] = 2982 // temp 1, 25.1 °C

	values := DecodePage(PageCell, words)
	if values["cell_1"] != 3.281 {
		t.Errorf("cell_1 = %v", values["cell_1"])
	}
	if values["cell_16"] != 3.275 {
		t.Errorf("cell_16 = %v", values["cell_16"])
	}
	if values["cell_temp_1"] != 25.1 {
		t.Errorf("cell_temp_1 = %v", values["cell_temp_1"])
	}
}

func TestDeriveMainMissingInputs(t *testing.T) {
	values := map[string]float64{"pack_voltage": 32.81}
	DeriveMain(values)
	if _, ok := values["power"]; ok {
		t.Error("power derived without current")
	}
	if _, ok := values["cell_delta"]; ok {
		t.Error("cell_delta derived without cell extremes")
	}
}
