package domain

import "math"

// Normalize lleva x al rango [0, 1] dividiendo por cap.
// Valores negativos o cap <= 0 devuelven 0; valores por encima de cap saturan en 1.
func Normalize(x, cap float64) float64 {
	if cap <= 0 || x <= 0 || math.IsNaN(x) {
		return 0
	}
	if x >= cap {
		return 1
	}
	return x / cap
}

// BuySellRatio calcula buys/sells acotado a ceiling.
// Con sells = 0 el ratio no está definido: devuelve ceiling en vez de Inf,
// salvo que tampoco haya compras (pool sin actividad → 0).
func BuySellRatio(buys, sells int, ceiling float64) float64 {
	if sells <= 0 {
		if buys <= 0 {
			return 0
		}
		return ceiling
	}
	r := float64(buys) / float64(sells)
	if ceiling > 0 && r > ceiling {
		return ceiling
	}
	return r
}

// LiquidityToMarketCap devuelve liquidity/marketCap, o 0 si marketCap no es positivo.
func LiquidityToMarketCap(liquidity, marketCap float64) float64 {
	if marketCap <= 0 || liquidity <= 0 {
		return 0
	}
	return liquidity / marketCap
}

// ProfitPct devuelve (current/entry - 1) × 100. Con entry <= 0 devuelve 0.
func ProfitPct(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (current/entry - 1) * 100
}

// RealizedPnL devuelve el PnL en moneda base de una posición de tamaño size
// comprada a entry y vendida a exit.
func RealizedPnL(size, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return size * (exit/entry - 1)
}
