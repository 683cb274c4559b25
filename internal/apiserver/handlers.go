package apiserver

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/api"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/config"
	"github.com/chainrelay/publisher/internal/domainerr"
)

type handlers struct {
	svc      *api.Service
	sessions *sessionIssuer
	logger   *zap.Logger
}

// statusFor maps a domainerr.Kind to an HTTP status: precondition
// failures are the caller's fault, transport/external failures are the
// upstream's, and a fatal kind means something this process itself cannot
// recover from.
func statusFor(err error) int {
	switch domainerr.KindOf(err) {
	case domainerr.KindPrecondition:
		return http.StatusBadRequest
	case domainerr.KindTransport, domainerr.KindExternal:
		return http.StatusBadGateway
	case domainerr.KindTxLifecycle:
		return http.StatusUnprocessableEntity
	case domainerr.KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func chainIDParam(r *http.Request) (*big.Int, error) {
	return config.ParseBigInt(chi.URLParam(r, "chainID"))
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- user-facing endpoints ---

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID string `json:"chain_id"`
		TxHash  string `json:"tx_hash"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chainID, err := config.ParseBigInt(req.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.svc.Deposit(r.Context(), chainID, common.HexToHash(req.TxHash))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": amount.String()})
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID   string `json:"chain_id"`
		Message   string `json:"message"`
		Signature string `json:"signature"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chainID, err := config.ParseBigInt(req.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.svc.Withdraw(r.Context(), chainID, req.Message, req.Signature)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queued": amount.String()})
}

func (h *handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChainID      string  `json:"chain_id"`
		Label        string  `json:"label"`
		ContractAddr string  `json:"contract_addr"`
		Signature    string  `json:"signature"`
		Message      string  `json:"message"`
		Frequency    string  `json:"frequency"`
		MethodSig    string  `json:"method_sig"`
		PairID       *string `json:"pair_id"`
		IsRandom     bool    `json:"is_random"`
		GasLimit     string  `json:"gas_limit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chainID, err := config.ParseBigInt(body.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	frequency, err := config.ParseBigInt(body.Frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	gasLimit, err := config.ParseBigInt(body.GasLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), api.SubscribeRequest{
		ChainID:      chainID,
		Label:        body.Label,
		ContractAddr: body.ContractAddr,
		Signature:    body.Signature,
		Message:      body.Message,
		Frequency:    frequency,
		MethodSig:    body.MethodSig,
		PairID:       body.PairID,
		IsRandom:     body.IsRandom,
		GasLimit:     gasLimit,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func subIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "subID"), 10, 64)
}

// siweBody is the shared signature payload for every SIWE-only mutation
// (stop/start/stop-all/remove-all), carried in the request body rather than
// headers since a signature is tied to a specific human-readable message,
// not a bearer credential.
type siweBody struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (h *handlers) stopSubscription(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	subID, err := subIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.StopSubscription(r.Context(), chainID, subID, body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) startSubscription(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	subID, err := subIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.StartSubscription(r.Context(), chainID, subID, body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address := chi.URLParam(r, "address")
	amount, err := h.svc.GetBalance(chainID, address)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": amount.String()})
}

// --- admin session (fronted by a JWT so a dashboard doesn't re-sign
// SIWE for every read) ---

func (h *handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	controller, err := h.svc.AuthenticateController(r.Context(), body.Message, body.Signature)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	token, err := h.sessions.issue(controller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *handlers) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var chainID *big.Int
	if raw := q.Get("chain_id"); raw != "" {
		parsed, err := config.ParseBigInt(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		chainID = parsed
	}
	owner := q.Get("owner")
	page := api.Pagination{}
	if raw := q.Get("from"); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			page.From = v
		}
	}
	if raw := q.Get("size"); raw != "" {
		if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
			page.Size = v
		}
	}
	views, err := h.svc.GetSubscriptions(chainID, owner, page)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// --- admin endpoints; each call carries its own SIWE signature in the
// body, matching internal/api's per-call controller check rather than
// relying solely on the JWT session above. ---

func (h *handlers) addChain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		siweBody
		ChainID          string `json:"chain_id"`
		RPC              string `json:"rpc"`
		MinBalance       string `json:"min_balance"`
		BlockGasLimit    string `json:"block_gas_limit"`
		Fee              string `json:"fee"`
		Symbol           string `json:"symbol"`
		MulticallAddress string `json:"multicall_address"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chainID, err := config.ParseBigInt(body.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minBalance, err := config.ParseBigInt(body.MinBalance)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	blockGasLimit, err := config.ParseBigInt(body.BlockGasLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var fee *big.Int
	if body.Fee != "" {
		fee, err = config.ParseBigInt(body.Fee)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	req := chainreg.AddRequest{
		ChainID:          chainID,
		RPC:              body.RPC,
		MinBalance:       minBalance,
		BlockGasLimit:    blockGasLimit,
		Fee:              fee,
		Symbol:           body.Symbol,
		MulticallAddress: common.HexToAddress(body.MulticallAddress),
	}
	if err := h.svc.AddChain(r.Context(), body.Message, body.Signature, req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handlers) removeChain(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.RemoveChain(r.Context(), body.Message, body.Signature, chainID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateChainRPC(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		siweBody
		RPC string `json:"rpc"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateChainRPC(r.Context(), body.Message, body.Signature, chainID, body.RPC); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateChainMinBalance(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		siweBody
		MinBalance string `json:"min_balance"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minBalance, err := config.ParseBigInt(body.MinBalance)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateChainMinBalance(r.Context(), body.Message, body.Signature, chainID, minBalance); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) executePublisherJob(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.ExecutePublisherJob(r.Context(), body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) executeWithdrawJob(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.ExecuteWithdrawJob(r.Context(), body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) stopTimer(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.StopTimer(r.Context(), body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearBalance(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address := chi.URLParam(r, "address")
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.ClearBalance(r.Context(), body.Message, body.Signature, chainID, address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) whitelistAdd(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.WhitelistAdd(r.Context(), body.Message, body.Signature, address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) whitelistRemove(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.WhitelistRemove(r.Context(), body.Message, body.Signature, address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) whitelistBlacklist(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.WhitelistBlacklist(r.Context(), body.Message, body.Signature, address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) whitelistUnblacklist(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.WhitelistUnblacklist(r.Context(), body.Message, body.Signature, address); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateTxFee(w http.ResponseWriter, r *http.Request) {
	var body struct {
		siweBody
		Fee string `json:"fee"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fee, err := config.ParseBigInt(body.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateTxFee(r.Context(), body.Message, body.Signature, fee); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateSubsLimitWallet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		siweBody
		Limit int `json:"limit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateSubsLimitWallet(r.Context(), body.Message, body.Signature, body.Limit); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateSubsLimitTotal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		siweBody
		Limit int `json:"limit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateSubsLimitTotal(r.Context(), body.Message, body.Signature, body.Limit); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) updateTimerFrequency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		siweBody
		Seconds string `json:"seconds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seconds, err := config.ParseBigInt(body.Seconds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateTimerFrequency(r.Context(), body.Message, body.Signature, seconds); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) withdrawFee(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		siweBody
		Receiver string `json:"receiver"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.svc.WithdrawFee(r.Context(), body.Message, body.Signature, chainID, common.HexToAddress(body.Receiver))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queued": amount.String()})
}

func (h *handlers) withdrawAllBalance(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	owner := chi.URLParam(r, "address")
	var body struct {
		siweBody
		Receiver string `json:"receiver"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.svc.WithdrawAllBalance(r.Context(), body.Message, body.Signature, chainID, owner, common.HexToAddress(body.Receiver))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queued": amount.String()})
}

func (h *handlers) updateGasLimit(w http.ResponseWriter, r *http.Request) {
	chainID, err := chainIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	subID, err := subIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		siweBody
		GasLimit string `json:"gas_limit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	gasLimit, err := config.ParseBigInt(body.GasLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.UpdateGasLimit(r.Context(), chainID, subID, gasLimit, body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) stopAllOwned(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.StopAllOwned(r.Context(), body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) removeAllOwned(w http.ResponseWriter, r *http.Request) {
	var body siweBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.RemoveAllOwned(r.Context(), body.Message, body.Signature); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
