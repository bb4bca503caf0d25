package model

import (
	"fmt"
	"time"
)

// TxType is the closed set of ledger entry kinds.
type TxType string

const (
	TxIssue           TxType = "out"
	TxReturn          TxType = "in"
	TxExchangeOut     TxType = "exchange_out"
	TxExchangeIn      TxType = "exchange_in"
	TxAdjustment      TxType = "adjustment"
	TxAuditAdjustment TxType = "audit"
	TxTransfer        TxType = "transfer"
)

// TxTypes lists every ledger entry kind in display order.
var TxTypes = []TxType{
	TxIssue, TxReturn, TxExchangeOut, TxExchangeIn, TxAdjustment, TxAuditAdjustment, TxTransfer,
}

// ParseTxType converts a wire string into a TxType.
func ParseTxType(s string) (TxType, error) {
	for _, t := range TxTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Label returns the human readable name used in notifications and exports.
func (t TxType) Label() string {
	switch t {
	case TxIssue:
		return "Issue"
	case TxReturn:
		return "Return"
	case TxExchangeOut:
		return "Exchange (out)"
	case TxExchangeIn:
		return "Exchange (in)"
	case TxAdjustment:
		return "Adjustment"
	case TxAuditAdjustment:
		return "Audit adjustment"
	case TxTransfer:
		return "Transfer"
	}
	panic(fmt.Sprintf("model: unhandled transaction type %q", string(t)))
}

// Transaction is an immutable ledger entry. Delta is the requested change,
// which may differ from the applied change when the quantity was clamped at 0.
type Transaction struct {
	ID               int64     `json:"id" db:"id"`
	ItemID           int64     `json:"item_id" db:"item_id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	Type             TxType    `json:"type" db:"type"`
	Delta            int64     `json:"quantity" db:"delta"`
	Recipient        string    `json:"recipient" db:"recipient"`
	Notes            string    `json:"notes" db:"notes"`
	ExpectedQuantity *int64    `json:"expected_quantity,omitempty" db:"expected_quantity"`
	ActualQuantity   *int64    `json:"actual_quantity,omitempty" db:"actual_quantity"`
	Discrepancy      *int64    `json:"discrepancy,omitempty" db:"discrepancy"`
	AuditID          *int64    `json:"audit_id,omitempty" db:"audit_id"`
	GroupID          string    `json:"group_id" db:"group_id"`
	QuantityAfter    int64     `json:"quantity_after" db:"quantity_after"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// QuantityChange is the observed effect of applying a delta to an item.
type QuantityChange struct {
	Before int64
	After  int64
}

// Clamped reports whether the requested delta would have driven the
// quantity below zero.
func (c QuantityChange) Clamped(delta int64) bool {
	return c.Before+delta < 0
}

// TransactionFilter narrows ledger queries. Zero values mean "any".
type TransactionFilter struct {
	WarehouseID *int64
	ItemID      *int64
	UserID      *int64
	Type        *TxType
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// Receipt is the result of a committed ledger operation.
type Receipt struct {
	GroupID      string        `json:"group_id"`
	Transactions []Transaction `json:"transactions"`
	Items        []Item        `json:"items"`
}
