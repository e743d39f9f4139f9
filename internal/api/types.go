package api

// QuoteResponse from GET /quote. Pointers distinguish absent fields from zero.
type QuoteResponse struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	PercentChange *float64 `json:"dp"`
	High          float64  `json:"h"`
	Low           float64  `json:"l"`
	Open          float64  `json:"o"`
	PreviousClose float64  `json:"pc"`
	Timestamp     int64    `json:"t"` // Unix seconds
}

// ProfileResponse from GET /stock/profile2. Unknown symbols return an empty object.
type ProfileResponse struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
	Industry string `json:"finnhubIndustry"`
}
