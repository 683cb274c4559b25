// Package domainerr defines the error taxonomy shared across the publisher:
// precondition failures, transport flakiness, tx lifecycle problems,
// external-collaborator failures, and fatal invariant violations. Every
// sentinel is wrapped with additional context via fmt.Errorf("...: %w", ...)
// at the call site rather than subclassed.
package domainerr

import "errors"

// Kind classifies an error for retry and logging decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrecondition
	KindTransport
	KindTxLifecycle
	KindExternal
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindTransport:
		return "transport"
	case KindTxLifecycle:
		return "tx_lifecycle"
	case KindExternal:
		return "external"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors, grouped by kind. Each is a leaf; call sites wrap it with
// %w to add the identifier that failed (chain id, address, sub id, ...).
var (
	// Precondition
	ErrChainAlreadyExists   = &kinded{KindPrecondition, errors.New("chain already exists")}
	ErrChainNotFound        = &kinded{KindPrecondition, errors.New("chain does not exist")}
	ErrInvalidChainRPC      = &kinded{KindPrecondition, errors.New("invalid chain rpc")}
	ErrBalanceAlreadyExists = &kinded{KindPrecondition, errors.New("balance already exists")}
	ErrBalanceNotFound      = &kinded{KindPrecondition, errors.New("balance does not exist")}
	ErrNonceAlreadyExists   = &kinded{KindPrecondition, errors.New("nonce already used")}
	ErrInsufficientBalance  = &kinded{KindPrecondition, errors.New("insufficient balance")}
	ErrInvalidAddress       = &kinded{KindPrecondition, errors.New("invalid address format")}
	ErrSubscriptionNotFound = &kinded{KindPrecondition, errors.New("subscription does not exist")}
	ErrTotalSubsLimit       = &kinded{KindPrecondition, errors.New("total subscriptions limit reached")}
	ErrWalletSubsLimit      = &kinded{KindPrecondition, errors.New("wallet subscriptions limit reached")}
	ErrFrequencyTooLow      = &kinded{KindPrecondition, errors.New("subscription frequency is too low")}
	ErrFrequencyNotDivides  = &kinded{KindPrecondition, errors.New("subscription frequency is not a multiple of the timer frequency")}
	ErrTimerFrequencyGT     = &kinded{KindPrecondition, errors.New("timer frequency is greater than subscription frequency")}
	ErrInvalidABIFuncName   = &kinded{KindPrecondition, errors.New("invalid abi function name")}
	ErrInvalidABIParams     = &kinded{KindPrecondition, errors.New("invalid abi parameters")}
	ErrInvalidABIParamsNum  = &kinded{KindPrecondition, errors.New("invalid abi parameters number")}
	ErrInvalidABIParamTypes = &kinded{KindPrecondition, errors.New("invalid abi parameter types")}
	ErrNotWhitelisted       = &kinded{KindPrecondition, errors.New("user is not whitelisted")}
	ErrNotController        = &kinded{KindPrecondition, errors.New("not a controller")}

	// Transport
	ErrTransportTimeout    = &kinded{KindTransport, errors.New("rpc timeout")}
	ErrTransportDivergence = &kinded{KindTransport, errors.New("responses were different across replicas")}
	ErrTransportPending    = &kinded{KindTransport, errors.New("request is pending")}
	ErrTransportKnown      = &kinded{KindTransport, errors.New("transaction already known")}

	// Tx lifecycle (ErrCorruptedMulticall, listed with them, is KindFatal)
	ErrTxFailed           = &kinded{KindTxLifecycle, errors.New("tx has failed")}
	ErrTxTimeout          = &kinded{KindTxLifecycle, errors.New("tx timeout")}
	ErrTxWithoutReceiver  = &kinded{KindTxLifecycle, errors.New("tx without receiver")}
	ErrTxNotSentToPMA     = &kinded{KindTxLifecycle, errors.New("tx was not sent to the pma")}
	ErrCorruptedMulticall = &kinded{KindFatal, errors.New("invalid multicall result")}

	// External
	ErrSignerFailed    = &kinded{KindExternal, errors.New("signer failed")}
	ErrFeedMissing     = &kinded{KindExternal, errors.New("price feed data missing")}
	ErrFeedUnavailable = &kinded{KindExternal, errors.New("price feed unavailable")}

	// Fatal
	ErrTimerUninitialized = &kinded{KindFatal, errors.New("timer is not initialized")}
)

// AsTransport wraps err so it classifies as KindTransport. Used at the RPC
// boundary, where a failed network round-trip (timeout, divergent replicas,
// "pending", "already known", no response) is assumed transient and worth
// a bounded retry.
func AsTransport(err error) error {
	if err == nil {
		return nil
	}
	return &kinded{KindTransport, err}
}

type kinded struct {
	kind Kind
	err  error
}

func (k *kinded) Error() string { return k.err.Error() }
func (k *kinded) Unwrap() error { return k.err }
func (k *kinded) Kind() Kind    { return k.kind }

// KindOf walks err's Unwrap chain looking for a classified sentinel and
// returns its Kind, or KindUnknown if none is found.
func KindOf(err error) Kind {
	var ke *kinded
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// Is reports whether err wraps the given sentinel, by delegating to
// errors.Is (kinded embeds the sentinel as its Unwrap target).
func Is(err, target error) bool {
	return errors.Is(err, target)
}
