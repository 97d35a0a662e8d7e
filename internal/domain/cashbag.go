package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BagAssignment struct {
	BagID            string          `json:"bag_id"`
	AssignmentDate   time.Time       `json:"assignment_date"`
	SourceSystem     string          `json:"source_system"`
	SourceIdentifier string          `json:"source_identifier"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	EmployeeID       string          `json:"employee_id,omitempty"`
	POSDeviceID      string          `json:"pos_device_id,omitempty"`
	ShiftID          string          `json:"shift_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type BagVerification struct {
	BagID         string          `json:"bag_id"`
	CountedAmount decimal.Decimal `json:"counted_amount"`
	CountedBy     string          `json:"counted_by"`
	Variance      decimal.Decimal `json:"variance"`
	Notes         string          `json:"notes,omitempty"`
	VerifiedAt    time.Time       `json:"verified_at"`
}

// BlindBag is what a counter is allowed to see before counting.
type BlindBag struct {
	BagID          string    `json:"bag_id"`
	AssignmentDate time.Time `json:"assignment_date"`
}

type CashBag struct {
	Assignment   BagAssignment    `json:"assignment"`
	Verification *BagVerification `json:"verification,omitempty"`
}

type Discrepancy struct {
	BagID            string          `json:"bag_id"`
	AssignmentDate   time.Time       `json:"assignment_date"`
	SourceSystem     string          `json:"source_system"`
	SourceIdentifier string          `json:"source_identifier"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	CountedAmount    decimal.Decimal `json:"counted_amount"`
	Variance         decimal.Decimal `json:"variance"`
	CountedBy        string          `json:"counted_by"`
	VerifiedAt       time.Time       `json:"verified_at"`
}
