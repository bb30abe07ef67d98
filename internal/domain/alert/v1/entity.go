package v1

import (
	"time"
)

// Operator is the comparison direction of a threshold rule.
type Operator string

const (
	// OperatorGTE triggers when price crosses from below the threshold to
	// at/above it.
	OperatorGTE Operator = "gte"
	// OperatorLTE triggers when price crosses from above the threshold to
	// at/below it.
	OperatorLTE Operator = "lte"
)

// IsValid reports whether the operator is one of the supported directions.
func (op Operator) IsValid() bool {
	return op == OperatorGTE || op == OperatorLTE
}

// Rule is a user-authored price alert definition.
type Rule struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Op        Operator  `json:"op"`
	Threshold float64   `json:"threshold"`
	Active    bool      `json:"is_active"`
	OneShot   bool      `json:"one_shot"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// Event actions. Threshold rules emit ALERT; the RSI zone watcher emits
// BUY (oversold) and SELL (overbought), matching the reference dashboard.
const (
	ActionAlert = "ALERT"
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
)

// Event is the immutable record of a rule transitioning from not-triggered
// to triggered at a specific price and time.
type Event struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id,omitempty"`
	Symbol       string    `json:"symbol"`
	Action       string    `json:"action"`
	Threshold    float64   `json:"threshold,omitempty"`
	TriggerPrice float64   `json:"trigger_price"`
	RSI          *float64  `json:"rsi,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
