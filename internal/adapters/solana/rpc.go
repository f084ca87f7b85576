package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/dexscalper/internal/adapters/httpclient"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultRPC      = "https://api.mainnet-beta.solana.com"
	lamportsDecimal = 9

	// Endpoint público: 40 req/10s por IP → 4/s. Usamos 3.
	rpcRatePerSec = 3
	rpcMaxRetries = 2

	defaultPollInterval = time.Second
)

// Mensajes de error del RPC que indican un fallo transitorio del envío.
var transientRPCErrors = []string{
	"Blockhash not found",
	"Transaction was not confirmed",
	"Node is behind",
}

// Mensajes que ningún reintento va a arreglar.
var rejectedRPCErrors = []string{
	"insufficient funds",
	"InsufficientFundsForFee",
	"AccountNotFound",
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type signatureStatus struct {
	Slot               uint64 `json:"slot"`
	Confirmations      *int   `json:"confirmations"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

// RPC es un cliente JSON-RPC mínimo para el nodo Solana.
type RPC struct {
	http         *httpclient.Client
	owner        string
	pollInterval time.Duration
	nextID       atomic.Uint64
}

// NewRPC crea un cliente RPC. owner es la wallet cuyo balance se consulta.
func NewRPC(url, owner string) *RPC {
	if url == "" {
		url = defaultRPC
	}
	return &RPC{
		http: httpclient.New(httpclient.Config{
			BaseURL:    url,
			RatePerSec: rpcRatePerSec,
			Burst:      3,
			MaxRetries: rpcMaxRetries,
		}),
		owner:        owner,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval cambia el intervalo de sondeo de confirmaciones.
func (r *RPC) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

func (r *RPC) call(ctx context.Context, method string, params []any, result any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: r.nextID.Add(1), Method: method, Params: params}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := r.http.Post(ctx, "", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// SendTransaction difunde una transacción firmada y devuelve su firma.
func (r *RPC) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
			"maxRetries":          3,
		},
	}
	var sig string
	if err := r.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", fmt.Errorf("solana.SendTransaction: %w", classifySendError(err))
	}
	return sig, nil
}

// classifySendError: transitorio → red; sin fondos → rechazo; el resto
// (simulación fallida, slippage) → quote, que se reintenta con un quote nuevo.
func classifySendError(err error) error {
	re, ok := err.(*rpcError)
	if !ok {
		return err
	}
	for _, m := range transientRPCErrors {
		if strings.Contains(re.Message, m) {
			return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
		}
	}
	for _, m := range rejectedRPCErrors {
		if strings.Contains(re.Message, m) {
			return fmt.Errorf("%w: %w", domain.ErrExecutionRejected, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrQuote, err)
}

// SignatureStatus consulta el estado de una firma, incluido el histórico.
func (r *RPC) SignatureStatus(ctx context.Context, sig string) (domain.TxStatus, uint64, error) {
	params := []any{
		[]string{sig},
		map[string]any{"searchTransactionHistory": true},
	}
	var result struct {
		Value []*signatureStatus `json:"value"`
	}
	if err := r.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return domain.TxStatus{}, 0, fmt.Errorf("solana.SignatureStatus: %w: %w", domain.ErrNetwork, err)
	}

	st := domain.TxStatus{TxRef: sig, State: domain.TxUnknown}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return st, 0, nil
	}
	v := result.Value[0]
	switch {
	case v.Err != nil:
		st.State = domain.TxFailed
		st.Err = fmt.Sprint(v.Err)
	case v.ConfirmationStatus == "confirmed" || v.ConfirmationStatus == "finalized":
		st.State = domain.TxConfirmed
	default:
		st.State = domain.TxPending
	}
	return st, v.Slot, nil
}

// WaitConfirmed sondea la firma hasta que se confirma, falla o vence ctx.
// Al vencer ctx devuelve domain.ErrExecutionTimeout.
func (r *RPC) WaitConfirmed(ctx context.Context, sig string) (domain.TxStatus, uint64, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	last := domain.TxStatus{TxRef: sig, State: domain.TxUnknown}
	var lastSlot uint64
	for {
		st, slot, err := r.SignatureStatus(ctx, sig)
		switch {
		case err != nil:
			slog.Debug("solana: status poll failed", "sig", sig, "err", err)
		case st.State == domain.TxConfirmed || st.State == domain.TxFailed:
			return st, slot, nil
		default:
			last, lastSlot = st, slot
		}
		select {
		case <-ctx.Done():
			return last, lastSlot, fmt.Errorf("solana.WaitConfirmed: %s: %w", sig, domain.ErrExecutionTimeout)
		case <-ticker.C:
		}
	}
}

// BaseBalance devuelve el balance SOL de la wallet.
func (r *RPC) BaseBalance(ctx context.Context) (float64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	params := []any{r.owner, map[string]any{"commitment": "confirmed"}}
	if err := r.call(ctx, "getBalance", params, &result); err != nil {
		return 0, fmt.Errorf("solana.BaseBalance: %w: %w", domain.ErrNetwork, err)
	}
	return decimal.New(int64(result.Value), -lamportsDecimal).InexactFloat64(), nil
}

// TokenBalance suma el saldo de todas las cuentas SPL del owner para mint.
// Sin cuentas devuelve 0: el token ya no está en la wallet.
func (r *RPC) TokenBalance(ctx context.Context, mint string) (float64, int, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount   string `json:"amount"`
								Decimals int    `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		r.owner,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": "confirmed"},
	}
	if err := r.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, 0, fmt.Errorf("solana.TokenBalance: %s: %w: %w", mint, domain.ErrNetwork, err)
	}

	total := decimal.Zero
	decimals := 0
	for _, acc := range result.Value {
		ta := acc.Account.Data.Parsed.Info.TokenAmount
		raw, err := decimal.NewFromString(ta.Amount)
		if err != nil {
			return 0, 0, fmt.Errorf("solana.TokenBalance: %s: amount %q: %w", mint, ta.Amount, domain.ErrNetwork)
		}
		total = total.Add(raw)
		decimals = ta.Decimals
	}
	return total.Shift(int32(-decimals)).InexactFloat64(), decimals, nil
}
