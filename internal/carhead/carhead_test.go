package carhead

import "testing"

func TestReadVarintSingleByte(t *testing.T) {
	value, consumed, ok := ReadVarint([]byte{0x39})
	if !ok || value != 57 || consumed != 1 {
		t.Fatalf("want (57, 1, true), got (%d, %d, %v)", value, consumed, ok)
	}
}

func TestReadVarintMultiByte(t *testing.T) {
	value, consumed, ok := ReadVarint([]byte{0x96, 0x01})
	if !ok || value != 150 || consumed != 2 {
		t.Fatalf("want (150, 2, true), got (%d, %d, %v)", value, consumed, ok)
	}
}

func TestReadVarintIncomplete(t *testing.T) {
	_, _, ok := ReadVarint([]byte{0x80})
	if ok {
		t.Fatal("want ok=false for incomplete varint")
	}
}

func TestReadVarintTooLong(t *testing.T) {
	longVarint := make([]byte, 11)
	for i := range longVarint {
		longVarint[i] = 0x80
	}
	_, _, ok := ReadVarint(longVarint)
	if ok {
		t.Fatal("want ok=false for varint longer than 10 bytes")
	}
}

func TestParseHeaderEmptyBytes(t *testing.T) {
	if ParseHeader(nil).Valid {
		t.Fatal("want invalid for empty bytes")
	}
}

func TestParseHeaderGarbage(t *testing.T) {
	if ParseHeader([]byte("<html>Not Found</html>")).Valid {
		t.Fatal("want invalid for garbage bytes")
	}
}

func TestParseHeaderV2PragmaAlone(t *testing.T) {
	if ParseHeader(carV2Pragma).Valid {
		t.Fatal("want invalid: pragma alone is not enough data")
	}
}

func TestEncodeBase32Lower(t *testing.T) {
	encoded := EncodeBase32Lower([]byte{0x01, 0x55, 0x12, 0x20})
	if encoded[0] != 'b' {
		t.Fatalf("want multibase 'b' prefix, got %q", encoded)
	}
	for _, r := range encoded[1:] {
		if !((r >= 'a' && r <= 'z') || (r >= '2' && r <= '7')) {
			t.Fatalf("unexpected character %q in %q", r, encoded)
		}
	}
}

func TestEncodeDecodeBase32LowerRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x00},
		{0x01, 0x55, 0x12, 0x20},
		{0xff, 0xfe, 0xfd, 0xfc, 0xfb},
	}
	for _, c := range cases {
		encoded := EncodeBase32Lower(c)
		decoded, err := DecodeBase32Lower(encoded)
		if err != nil {
			t.Fatalf("decode(%q) failed: %v", encoded, err)
		}
		if len(decoded) != len(c) {
			t.Fatalf("round trip length mismatch for %v: got %v", c, decoded)
		}
		for i := range c {
			if decoded[i] != c[i] {
				t.Fatalf("round trip mismatch for %v: got %v", c, decoded)
			}
		}
	}
}

func TestDecodeBase32LowerRejectsMissingPrefix(t *testing.T) {
	if _, err := DecodeBase32Lower("abc"); err == nil {
		t.Fatal("want error for missing multibase prefix")
	}
}
