package numeric

import (
	"math/big"
	"testing"
)

func TestGasPriceWithMultiplier(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"10", "12"},
		{"9", "0"},
		{"100", "120"},
		{"15", "12"}, // 15/10 = 1 (integer division), 1*12 = 12
	}
	for _, c := range cases {
		price, _ := new(big.Int).SetString(c.price, 10)
		want, _ := new(big.Int).SetString(c.want, 10)
		got := GasPriceWithMultiplier(price)
		if got.Cmp(want) != 0 {
			t.Errorf("GasPriceWithMultiplier(%s) = %s, want %s", c.price, got, want)
		}
	}
}

func TestSaturatingSubFloor(t *testing.T) {
	a := big.NewInt(5)
	b := big.NewInt(10)
	got := SaturatingSub(a, b)
	if got.Sign() != 0 {
		t.Fatalf("expected floor at zero, got %s", got)
	}
}

func TestSaturatingAddAndMulUint64(t *testing.T) {
	got := SaturatingAdd(big.NewInt(27_000), big.NewInt(50_000))
	if got.Int64() != 77_000 {
		t.Fatalf("SaturatingAdd = %s, want 77000", got)
	}
	if SaturatingAdd(nil, nil).Sign() != 0 {
		t.Fatal("nil operands should add to zero")
	}

	got = MulUint64(big.NewInt(7_900), 100)
	if got.Int64() != 790_000 {
		t.Fatalf("MulUint64 = %s, want 790000", got)
	}
}

func TestToUint64(t *testing.T) {
	if ToUint64(nil) != 0 {
		t.Fatal("nil should read as zero")
	}
	if ToUint64(big.NewInt(95_000)) != 95_000 {
		t.Fatal("value known to fit should round-trip")
	}
}

func TestToU256Clamping(t *testing.T) {
	if ToU256(nil).Sign() != 0 {
		t.Fatal("nil should convert to zero")
	}
	if ToU256(big.NewInt(-5)).Sign() != 0 {
		t.Fatal("negative should clamp to zero")
	}
	back := FromU256(ToU256(big.NewInt(42)))
	if back.Int64() != 42 {
		t.Fatalf("round trip mismatch: got %s", back)
	}
}

func TestNormalizeAddress(t *testing.T) {
	lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	got, err := Normalize(lower)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("unexpected checksum: %s", got)
	}
	if _, err := Normalize("not-an-address"); err == nil {
		t.Fatal("expected error for invalid address")
	}
}
