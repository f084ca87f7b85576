package gecko

// trendingResponse es la respuesta JSON:API de /networks/{net}/trending_pools.
type trendingResponse struct {
	Data []poolResource `json:"data"`
}

type poolResource struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Attributes    poolAttributes `json:"attributes"`
	Relationships struct {
		BaseToken struct {
			Data *resourceRef `json:"data"`
		} `json:"base_token"`
	} `json:"relationships"`
}

type resourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Los importes llegan como strings decimales y pueden ser null.
type poolAttributes struct {
	Address           string                  `json:"address"`
	Name              string                  `json:"name"`
	BaseTokenPriceUSD *string                 `json:"base_token_price_usd"`
	MarketCapUSD      *string                 `json:"market_cap_usd"`
	FDVUSD            *string                 `json:"fdv_usd"`
	ReserveInUSD      *string                 `json:"reserve_in_usd"`
	PoolCreatedAt     string                  `json:"pool_created_at"`
	PriceChangePct    map[string]*string      `json:"price_change_percentage"`
	VolumeUSD         map[string]*string      `json:"volume_usd"`
	Transactions      map[string]*txnCounters `json:"transactions"`
}

type txnCounters struct {
	Buys    *int `json:"buys"`
	Sells   *int `json:"sells"`
	Buyers  *int `json:"buyers"`
	Sellers *int `json:"sellers"`
}
