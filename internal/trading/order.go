package trading

import (
	"virtual-trading-sim/internal/models"

	"github.com/shopspring/decimal"
)

// Order is a request to buy or sell an instrument at the simulated price.
// LimitPrice is recorded but LIMIT orders still fill at the current price.
type Order struct {
	UserID       uint64
	InstrumentID uint
	Side         models.Side
	Kind         models.OrderKind
	Quantity     decimal.Decimal
	LimitPrice   *decimal.Decimal
}

// Outcome tags how an order ended.
type Outcome string

const (
	OutcomeOK                Outcome = "OK"
	OutcomeValidationFault   Outcome = "VALIDATION_FAULT"
	OutcomeBusinessRejection Outcome = "BUSINESS_REJECTION"
	OutcomeNotFound          Outcome = "NOT_FOUND"
	OutcomeSystemFault       Outcome = "SYSTEM_FAULT"
)

// ExecutionResult is what an order produced. Business rejections come back
// with Success false and no error; faults also return an error.
type ExecutionResult struct {
	Success    bool                 `json:"success"`
	Outcome    Outcome              `json:"outcome"`
	Message    string               `json:"message"`
	NewBalance decimal.Decimal      `json:"new_balance"`
	Entry      *models.JournalEntry `json:"journal_entry,omitempty"`
	Held       *decimal.Decimal     `json:"held,omitempty"`
	Requested  *decimal.Decimal     `json:"requested,omitempty"`
}

func failed(outcome Outcome, message string) *ExecutionResult {
	return &ExecutionResult{Outcome: outcome, Message: message}
}

func rejected(message string, balance decimal.Decimal) *ExecutionResult {
	return &ExecutionResult{Outcome: OutcomeBusinessRejection, Message: message, NewBalance: balance}
}
