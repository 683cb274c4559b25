package abiresolver

import (
	"errors"
	"math/big"
	"testing"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/subscription"
)

func TestResolveEmptyMethod(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved, err := r.Resolve("report()", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.MethodType.Kind != subscription.KindEmpty {
		t.Fatalf("expected KindEmpty, got %v", resolved.MethodType.Kind)
	}
	if resolved.Method.Name != "report" {
		t.Fatalf("expected method name report, got %s", resolved.Method.Name)
	}

	data, err := CallData(resolved, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 4 {
		t.Fatalf("expected selector-only calldata, got %d bytes", len(data))
	}
	if string(data) != string(resolved.Method.ID) {
		t.Fatal("calldata does not start with the method selector")
	}
}

func TestResolveRandomMethod(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved, err := r.Resolve("seed(uint256)", nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.MethodType.Kind != subscription.KindRandom {
		t.Fatalf("expected KindRandom, got %v", resolved.MethodType.Kind)
	}

	data, err := CallData(resolved, nil, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty calldata")
	}
}

func TestResolveRandomFixedWidthIntegerTypes(t *testing.T) {
	r, _ := New()
	for _, kind := range []string{
		"uint8", "uint16", "uint32", "uint64", "uint128", "uint256", "uint",
		"int8", "int16", "int32", "int64", "int256", "int",
	} {
		resolved, err := r.Resolve("roll("+kind+")", nil, true)
		if err != nil {
			t.Fatalf("resolve roll(%s): %v", kind, err)
		}
		data, err := CallData(resolved, nil, 0xdeadbeef)
		if err != nil {
			t.Fatalf("calldata for roll(%s): %v", kind, err)
		}
		if len(data) != 4+32 {
			t.Fatalf("calldata for roll(%s) = %d bytes, want selector plus one word", kind, len(data))
		}
	}
}

func TestResolveRandomRejectsUnsupportedType(t *testing.T) {
	r, _ := New()
	_, err := r.Resolve("seed(bool)", nil, true)
	if !errors.Is(err, domainerr.ErrInvalidABIParamTypes) {
		t.Fatalf("expected ErrInvalidABIParamTypes, got %v", err)
	}
}

func TestResolvePairMethod(t *testing.T) {
	r, _ := New()
	pairID := "ETH/USD"
	resolved, err := r.Resolve("report(string,uint256,uint256,uint256)", &pairID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.MethodType.Kind != subscription.KindPair || resolved.MethodType.PairID != pairID {
		t.Fatalf("expected KindPair with pair id %s, got %+v", pairID, resolved.MethodType)
	}

	data, err := CallData(resolved, &PairInput{PairID: pairID, Price: big.NewInt(3000), Decimals: 18, Timestamp: 1_700_000_000}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty calldata")
	}
}

func TestResolvePairRejectsWrongShape(t *testing.T) {
	r, _ := New()
	pairID := "ETH/USD"
	_, err := r.Resolve("report(uint256)", &pairID, false)
	if !errors.Is(err, domainerr.ErrInvalidABIParams) {
		t.Fatalf("expected ErrInvalidABIParams, got %v", err)
	}
}

func TestResolveCachesBySignature(t *testing.T) {
	r, _ := New()
	first, err := r.Resolve("report()", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve("report()", nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.JSON != second.JSON {
		t.Fatal("expected cached resolution to match")
	}
}
