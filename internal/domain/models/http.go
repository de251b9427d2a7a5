package models

// Requests for strategy HTTP endpoints. Defined in domain for consistency and reuse.

type WindowsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type StateRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from" validate:"required"`
	To     string `query:"to" json:"to"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 1h 4h"`
	Limit  int    `query:"limit" json:"limit" default:"10000" validate:"gte=1,lte=50000"`
}
