package seplos

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildRequestBigEndianWords(t *testing.T) {
	got := BuildRequest(0x00, FuncReadRegisters, MainBase, MainRegisters)
	want := []byte{0x00, 0x04, 0x10, 0x00, 0x00, 0x12}
	if !bytes.Equal(got, want) {
		t.Fatalf("BuildRequest() = % X, want % X", got, want)
	}
}

func TestReadPageRequest(t *testing.T) {
	cases := []struct {
		page Page
		want []byte
	}{
		{PageMain, []byte{0x00, 0x04, 0x10, 0x00, 0x00, 0x12}},
		{PageCell, []byte{0x00, 0x04, 0x11, 0x00, 0x00, 0x1A}},
		{PageParam, []byte{0x00, 0x04, 0x13, 0x00, 0x00, 0x69}},
	}
	for _, tc := range cases {
		got := ReadPageRequest(0x00, tc.page)
		if !bytes.Equal(got, tc.want) {
			t.Errorf("ReadPageRequest(%v) = % X, want % X", tc.page, got, tc.want)
		}
	}
}

func TestReadFieldRequest(t *testing.T) {
	got := ReadFieldRequest(0x00, 0x28)
	want := []byte{0x00, 0x04, 0x13, 0x28, 0x00, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadFieldRequest() = % X, want % X", got, want)
	}
}

func TestWriteFieldRequest(t *testing.T) {
	got := WriteFieldRequest(0x00, 0x28, 0x0CE4)
	want := []byte{0x00, 0x10, 0x13, 0x28, 0x00, 0x01, 0x02, 0x0C, 0xE4}
	if !bytes.Equal(got, want) {
		t.Fatalf("WriteFieldRequest() = % X, want % X", got, want)
	}
}

func TestSplitWords(t *testing.T) {
	words := SplitWords([]byte{0x0C, 0xD1, 0xFF, 0xFF, 0x00, 0x01})
	want := []uint16{0x0CD1, 0xFFFF, 0x0001}
	if len(words) != len(want) {
		t.Fatalf("got %d words, want %d", len(words), len(want))
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word[%d] = %#04x, want %#04x", i, words[i], want[i])
		}
	}
}

func TestParseReadResponse(t *testing.T) {
	frame := AppendChecksum([]byte{0x00, 0x04, 0x04, 0x0C, 0xD1, 0x00, 0x64})
	words, err := ParseReadResponse(frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != 0x0CD1 || words[1] != 0x0064 {
		t.Fatalf("unexpected words %v", words)
	}
}

func TestParseReadResponseLengthMismatch(t *testing.T) {
	// byte count 说有4字节payload，实际只有2字节
	frame := AppendChecksum([]byte{0x00, 0x04, 0x04, 0x0C, 0xD1})
	if _, err := ParseReadResponse(frame); !errors.Is(err, ErrMalformed) {
		t.Fatalf("got %v, want ErrMalformed", err)
	}
}

func TestParseReadResponseTooShort(t *testing.T) {
	if _, err := ParseReadResponse([]byte{0x00, 0x04}); !errors.Is(err, ErrFrameTooShort) {
		t.Fatalf("got %v, want ErrFrameTooShort", err)
	}
}
