// Package abiresolver turns a subscription's compact method signature
// ("report(uint256,uint256)") into a full go-ethereum ABI and produces the
// calldata for each of the three method shapes a subscription can have: a
// price-feed pair lookup, a random-value template, or a parameterless call.
package abiresolver

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chainrelay/publisher/internal/domainerr"
	"github.com/chainrelay/publisher/internal/subscription"
)

const abiCacheSize = 512

// Resolved is a subscription method's fully-parsed ABI.
type Resolved struct {
	Name       string
	JSON       string
	Method     abi.Method
	MethodType subscription.MethodType
}

// Resolver parses and caches method signatures so repeated subscriptions on
// the same signature don't re-parse JSON every tick.
type Resolver struct {
	cache *lru.Cache[string, Resolved]
}

// New returns a Resolver with an LRU cache sized for a busy publisher.
func New() (*Resolver, error) {
	cache, err := lru.New[string, Resolved](abiCacheSize)
	if err != nil {
		return nil, fmt.Errorf("abiresolver: %w", err)
	}
	return &Resolver{cache: cache}, nil
}

// Resolve parses a compact signature like "report(string,uint256,uint256,uint256)"
// into one of the three supported method shapes and caches the result.
//
// Shape selection: a non-nil pairID always wins (price-feed pair
// lookup), then isRandom, then the parameterless default.
func (r *Resolver) Resolve(signature string, pairID *string, isRandom bool) (Resolved, error) {
	cacheKey := fmt.Sprintf("%s|%v|%v", signature, pairID, isRandom)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	raw := splitSignature(signature)

	var (
		resolved Resolved
		err      error
	)
	switch {
	case pairID != nil:
		resolved, err = pairABI(raw, *pairID)
	case isRandom:
		resolved, err = randomABI(raw)
	default:
		resolved, err = emptyABI(raw)
	}
	if err != nil {
		return Resolved{}, err
	}

	method, err := parseMethod(resolved.JSON, resolved.Name)
	if err != nil {
		return Resolved{}, err
	}
	resolved.Method = method

	r.cache.Add(cacheKey, resolved)
	return resolved, nil
}

// ResolveStored re-parses a subscription's already-resolved method (its
// stored ABI JSON and name) without re-deriving the method shape from a
// signature string, for use by the scheduler on every publish attempt. It
// shares the same cache as Resolve, keyed by the stored ABI/name pair.
func (r *Resolver) ResolveStored(m subscription.Method) (Resolved, error) {
	cacheKey := fmt.Sprintf("stored|%s|%s", m.Name, m.ABI)
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	method, err := parseMethod(m.ABI, m.Name)
	if err != nil {
		return Resolved{}, err
	}

	resolved := Resolved{Name: m.Name, JSON: m.ABI, Method: method, MethodType: m.MethodType}
	r.cache.Add(cacheKey, resolved)
	return resolved, nil
}

// splitSignature is a naive tokenizer: split on '(', ')', ',' and drop
// empty trailing tokens.
func splitSignature(signature string) []string {
	fields := strings.FieldsFunc(signature, func(r rune) bool {
		return r == '(' || r == ')' || r == ','
	})
	return fields
}

func pairABI(raw []string, pairID string) (Resolved, error) {
	if len(raw) == 0 {
		return Resolved{}, domainerr.ErrInvalidABIFuncName
	}
	if len(raw) != 5 || raw[1] != "string" || raw[2] != "uint256" || raw[3] != "uint256" || raw[4] != "uint256" {
		return Resolved{}, domainerr.ErrInvalidABIParams
	}

	name := raw[0]
	doc := fmt.Sprintf(`[{
		"inputs": [
			{"internalType":"string","name":"pair_id","type":"string"},
			{"internalType":"uint256","name":"price","type":"uint256"},
			{"internalType":"uint256","name":"decimals","type":"uint256"},
			{"internalType":"uint256","name":"timestamp","type":"uint256"}
		],
		"name": %q,
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`, name)

	return Resolved{
		Name:       name,
		JSON:       doc,
		MethodType: subscription.MethodType{Kind: subscription.KindPair, PairID: pairID},
	}, nil
}

func randomABI(raw []string) (Resolved, error) {
	if len(raw) != 2 {
		return Resolved{}, domainerr.ErrInvalidABIParamsNum
	}
	name := raw[0]
	paramType := raw[1]
	if !isSupportedFuncParam(paramType) {
		return Resolved{}, domainerr.ErrInvalidABIParamTypes
	}
	// abi.JSON rejects the bare aliases, so spell them out as 256-bit types.
	switch paramType {
	case "uint":
		paramType = "uint256"
	case "int":
		paramType = "int256"
	}

	doc := fmt.Sprintf(`[{
		"inputs": [{"internalType":%q,"name":"template","type":%q}],
		"name": %q,
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`, paramType, paramType, name)

	return Resolved{
		Name:       name,
		JSON:       doc,
		MethodType: subscription.MethodType{Kind: subscription.KindRandom, ParamType: paramType},
	}, nil
}

func emptyABI(raw []string) (Resolved, error) {
	if len(raw) == 0 {
		return Resolved{}, domainerr.ErrInvalidABIFuncName
	}
	if len(raw) > 1 && raw[1] != "" {
		return Resolved{}, domainerr.ErrInvalidABIParamsNum
	}
	name := raw[0]
	doc := fmt.Sprintf(`[{
		"inputs": [],
		"name": %q,
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`, name)

	return Resolved{
		Name:       name,
		JSON:       doc,
		MethodType: subscription.MethodType{Kind: subscription.KindEmpty},
	}, nil
}

func isSupportedFuncParam(kind string) bool {
	for _, prefix := range []string{"string", "bytes", "uint", "int"} {
		if strings.HasPrefix(kind, prefix) {
			return true
		}
	}
	return false
}

func parseMethod(contractJSON, name string) (abi.Method, error) {
	parsed, err := abi.JSON(strings.NewReader(contractJSON))
	if err != nil {
		return abi.Method{}, fmt.Errorf("abiresolver: parse %q: %w", name, err)
	}
	method, ok := parsed.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("abiresolver: method %q missing after parse: %w", name, domainerr.ErrInvalidABIFuncName)
	}
	return method, nil
}

// PairInput is the feed data plugged into a pair-method call.
type PairInput struct {
	PairID    string
	Price     *big.Int
	Decimals  uint8
	Timestamp int64
}

// CallData builds the full calldata (4-byte selector plus packed
// arguments) for one subscription method invocation, dispatching on the
// method's resolved kind. randomSeed feeds a fresh pseudo-random value for
// KindRandom methods (regenerated by the caller on every retry attempt,
// never cached).
func CallData(resolved Resolved, pair *PairInput, randomSeed uint64) ([]byte, error) {
	var (
		args []byte
		err  error
	)
	switch resolved.MethodType.Kind {
	case subscription.KindPair:
		if pair == nil {
			return nil, fmt.Errorf("abiresolver: pair method without feed data: %w", domainerr.ErrFeedMissing)
		}
		args, err = resolved.Method.Inputs.Pack(
			pair.PairID,
			pair.Price,
			big.NewInt(int64(pair.Decimals)),
			big.NewInt(pair.Timestamp),
		)
	case subscription.KindRandom:
		var token any
		token, err = castToParamType(randomSeed, resolved.MethodType.ParamType)
		if err == nil {
			args, err = resolved.Method.Inputs.Pack(token)
		}
	default:
		args, err = resolved.Method.Inputs.Pack()
	}
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, resolved.Method.ID...), args...), nil
}

// castToParamType synthesizes a value of the random method's declared
// parameter type from a raw seed.
func castToParamType(seed uint64, kind string) (any, error) {
	switch {
	case kind == "bytes":
		return uint64ToBytes(seed), nil
	case kind == "bytes32":
		var out [32]byte
		copy(out[:], uint64ToBytes(seed))
		return out, nil
	case strings.Contains(kind, "bytes"):
		// Only the dynamic "bytes" and the common "bytes32" fixed form are
		// synthesized; go-ethereum's abi.Pack requires the Go value's array
		// length to match the ABI type exactly, which a generic N would need
		// reflection to satisfy.
		return nil, fmt.Errorf("abiresolver: unsupported fixed bytes size %q: %w", kind, domainerr.ErrInvalidABIParamTypes)
	case strings.HasPrefix(kind, "uint"):
		// go-ethereum packs uint8/16/32/64 as the native Go integer of the
		// same width and every wider size as *big.Int; the value handed to
		// Inputs.Pack must match or typeCheck rejects it.
		switch kind {
		case "uint8":
			return uint8(seed), nil
		case "uint16":
			return uint16(seed), nil
		case "uint32":
			return uint32(seed), nil
		case "uint64":
			return seed, nil
		}
		return new(big.Int).SetUint64(seed), nil
	case strings.HasPrefix(kind, "int"):
		switch kind {
		case "int8":
			return int8(seed), nil
		case "int16":
			return int16(seed), nil
		case "int32":
			return int32(seed), nil
		case "int64":
			return int64(seed), nil
		}
		return new(big.Int).SetInt64(int64(seed)), nil
	case strings.Contains(kind, "string"):
		return strconv.FormatUint(seed, 10), nil
	default:
		return nil, domainerr.ErrInvalidABIParamTypes
	}
}

func uint64ToBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

