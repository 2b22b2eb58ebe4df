package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertRecord captures one dispatched trade alert for auditing.
type AlertRecord struct {
	ID         uuid.UUID
	ChatID     int64
	Pair       string
	TradeID    string
	Side       string
	AmountUSD  decimal.NullDecimal
	AmountBase decimal.NullDecimal
	PriceUSD   decimal.NullDecimal
	TradeTime  *time.Time
	Delivered  bool
	Error      *string
	CreatedAt  time.Time
}
