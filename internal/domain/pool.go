package domain

import "time"

// Field identifica un campo de PoolSnapshot que la fuente puede no informar.
type Field string

const (
	FieldMarketCap   Field = "market_cap_usd"
	FieldLiquidity   Field = "liquidity_usd"
	FieldVolume24h   Field = "volume_24h_usd"
	FieldPriceChange Field = "price_change_pct"
	FieldBuyCount    Field = "buy_count"
	FieldSellCount   Field = "sell_count"
	FieldPrice       Field = "price_usd"
)

// RequiredFields son los campos sin los cuales un pool nunca pasa el filtro.
// La liquidez es opcional: si falta, su componente del score vale 0.
var RequiredFields = []Field{
	FieldMarketCap,
	FieldVolume24h,
	FieldPriceChange,
	FieldBuyCount,
	FieldSellCount,
}

// PoolSnapshot es un registro crudo del feed de trending pools en un instante.
type PoolSnapshot struct {
	TokenAddress string
	PoolAddress  string
	Name         string

	MarketCapUSD   float64
	LiquidityUSD   float64
	Volume24hUSD   float64
	PriceChangePct float64 // variación en la ventana de lookback configurada
	BuyCount       int
	SellCount      int
	PriceUSD       float64

	Timestamp time.Time

	// Missing lista los campos que la fuente no devolvió (null o ausentes).
	// Un campo en Missing nunca se trata como cero válido.
	Missing []Field
}

// Has devuelve true si la fuente informó el campo.
func (p PoolSnapshot) Has(f Field) bool {
	for _, m := range p.Missing {
		if m == f {
			return false
		}
	}
	return true
}

// MarkMissing añade f a Missing si no estaba ya.
func (p *PoolSnapshot) MarkMissing(f Field) {
	if !p.Has(f) {
		return
	}
	p.Missing = append(p.Missing, f)
}

// ClearMissing quita f de Missing (usado al enriquecer desde otra fuente).
func (p *PoolSnapshot) ClearMissing(f Field) {
	out := p.Missing[:0]
	for _, m := range p.Missing {
		if m != f {
			out = append(out, m)
		}
	}
	p.Missing = out
}

// MissingRequired devuelve los campos obligatorios ausentes, en orden fijo.
func (p PoolSnapshot) MissingRequired() []Field {
	var out []Field
	for _, f := range RequiredFields {
		if !p.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
