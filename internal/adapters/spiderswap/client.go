package spiderswap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/dexscalper/internal/adapters/httpclient"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	defaultSwapURL  = "https://api.spiderswap.io/spider-api/v1"
	defaultProvider = "raydium"
	wrappedSOL      = "So11111111111111111111111111111111111111112"

	defaultPriorityMicroLamports = 100000

	ratePerSec = 2
	maxRetries = 1
)

// TxSender es la parte del RPC de Solana que necesita Execute.
type TxSender interface {
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	WaitConfirmed(ctx context.Context, sig string) (domain.TxStatus, uint64, error)
	SignatureStatus(ctx context.Context, sig string) (domain.TxStatus, uint64, error)
}

// Config del cliente de swaps.
type Config struct {
	SwapURL               string
	APIKey                string
	Owner                 string // wallet que firma y paga
	BaseMint              string // moneda base (wrapped SOL)
	BaseDecimals          int
	Provider              string // pool router: raydium, orca, meteora...
	PriorityMicroLamports int
}

type swapResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		Base64Transaction string      `json:"base64Transaction"`
		InAmount          json.Number `json:"inAmount"`
		OutAmount         json.Number `json:"outAmount"`
		InputDecimals     *int        `json:"inputDecimals"`
		OutputDecimals    *int        `json:"outputDecimals"`
	} `json:"data"`
}

// Client pide transacciones de swap listas para firmar y las difunde vía RPC.
type Client struct {
	http *httpclient.Client
	rpc  TxSender
	cfg  Config
	now  func() time.Time
}

// NewClient crea un Client. Campos vacíos de cfg toman los valores por defecto.
func NewClient(cfg Config, rpc TxSender) *Client {
	if cfg.SwapURL == "" {
		cfg.SwapURL = defaultSwapURL
	}
	if cfg.BaseMint == "" {
		cfg.BaseMint = wrappedSOL
	}
	if cfg.BaseDecimals <= 0 {
		cfg.BaseDecimals = 9
	}
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}
	if cfg.PriorityMicroLamports <= 0 {
		cfg.PriorityMicroLamports = defaultPriorityMicroLamports
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-KEY"] = cfg.APIKey
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:    cfg.SwapURL,
			RatePerSec: ratePerSec,
			Burst:      2,
			MaxRetries: maxRetries,
			Headers:    headers,
		}),
		rpc: rpc,
		cfg: cfg,
		now: time.Now,
	}
}

// Quote pide al router una transacción de swap para req.
// Compra: base → token. Venta: token → base.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if req.Amount <= 0 {
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: amount %v: %w", req.Amount, domain.ErrQuote)
	}

	from, to := c.cfg.BaseMint, req.TokenAddress
	if req.Side == domain.SideSell {
		from, to = req.TokenAddress, c.cfg.BaseMint
	}
	raw := decimal.NewFromFloat(req.Amount).Shift(int32(req.AmountDecimals)).Floor()
	if !raw.IsPositive() {
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: amount rounds to zero: %w", domain.ErrQuote)
	}

	q := url.Values{}
	q.Set("owner", c.cfg.Owner)
	q.Set("fromMint", from)
	q.Set("toMint", to)
	q.Set("amount", raw.String())
	q.Set("slippage", strconv.Itoa(req.MaxSlippageBps))
	q.Set("provider", c.cfg.Provider)
	q.Set("priorityMicroLamports", strconv.Itoa(c.cfg.PriorityMicroLamports))

	var resp swapResponse
	if err := c.http.Get(ctx, "/swap", q, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return domain.Quote{}, fmt.Errorf("spiderswap.Quote: %w: %w", domain.ErrQuote, err)
		}
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: %w", err)
	}
	if !resp.Success || resp.Data == nil || resp.Data.Base64Transaction == "" {
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: %q: %w", resp.Message, domain.ErrQuote)
	}

	tx, err := base64.StdEncoding.DecodeString(resp.Data.Base64Transaction)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: decode tx: %w: %w", domain.ErrQuote, err)
	}

	inDec, outDec := c.cfg.BaseDecimals, req.AmountDecimals
	if req.Side == domain.SideSell {
		inDec, outDec = req.AmountDecimals, c.cfg.BaseDecimals
	}
	if resp.Data.InputDecimals != nil {
		inDec = *resp.Data.InputDecimals
	}
	if resp.Data.OutputDecimals != nil {
		outDec = *resp.Data.OutputDecimals
	}

	inRaw, err := decimal.NewFromString(resp.Data.InAmount.String())
	if err != nil || !inRaw.IsPositive() {
		inRaw = raw
	}
	outRaw, err := decimal.NewFromString(resp.Data.OutAmount.String())
	if err != nil || !outRaw.IsPositive() {
		return domain.Quote{}, fmt.Errorf("spiderswap.Quote: outAmount %q: %w", resp.Data.OutAmount, domain.ErrQuote)
	}
	in := inRaw.Shift(-int32(inDec))
	out := outRaw.Shift(-int32(outDec))

	// precio siempre en moneda base por token
	var price decimal.Decimal
	if req.Side == domain.SideSell {
		price = out.Div(in)
	} else {
		price = in.Div(out)
	}

	return domain.Quote{
		TokenAddress:  req.TokenAddress,
		Side:          req.Side,
		InAmount:      in.InexactFloat64(),
		OutAmount:     out.InexactFloat64(),
		InDecimals:    inDec,
		OutDecimals:   outDec,
		ExpectedPrice: price.InexactFloat64(),
		SlippageBps:   req.MaxSlippageBps,
		Transaction:   tx,
		QuotedAt:      c.now(),
	}, nil
}

// Execute difunde la transacción firmada y espera la confirmación hasta que
// venza ctx. Si la difusión tuvo éxito, TxResult.TxRef viene relleno aunque
// haya error.
func (c *Client) Execute(ctx context.Context, quote domain.Quote, signed domain.SignedTransaction) (domain.TxResult, error) {
	sig, err := c.rpc.SendTransaction(ctx, signed.Raw)
	if err != nil {
		return domain.TxResult{}, fmt.Errorf("spiderswap.Execute: send: %w", err)
	}
	slog.Info("spiderswap: transaction sent", "token", quote.TokenAddress, "side", quote.Side, "sig", sig)

	res := domain.TxResult{TxRef: sig}
	st, slot, err := c.rpc.WaitConfirmed(ctx, sig)
	if err != nil {
		return res, fmt.Errorf("spiderswap.Execute: confirm: %w", err)
	}
	res.Slot = slot
	if st.State == domain.TxFailed {
		// fallo on-chain (normalmente slippage): un quote nuevo puede funcionar
		return res, fmt.Errorf("spiderswap.Execute: tx %s failed on-chain: %s: %w", sig, st.Err, domain.ErrQuote)
	}
	res.Confirmed = true
	return res, nil
}

// TxStatus consulta el estado de una transacción ya difundida.
func (c *Client) TxStatus(ctx context.Context, txRef string) (domain.TxStatus, error) {
	st, _, err := c.rpc.SignatureStatus(ctx, txRef)
	if err != nil {
		return domain.TxStatus{}, fmt.Errorf("spiderswap.TxStatus: %w", err)
	}
	return st, nil
}
