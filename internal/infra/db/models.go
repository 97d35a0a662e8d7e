package db

import "time"

// Amounts are stored as integer cents and dates as YYYY-MM-DD text so the
// same schema behaves identically on Postgres and SQLite.

type TicketModel struct {
	TicketID       string     `gorm:"primaryKey"`
	SemanticHash   string     `gorm:"uniqueIndex;not null"`
	PayloadHash    string     `gorm:"not null"`
	Status         string     `gorm:"index;not null"`
	Payload        string     `gorm:"type:text;not null"`
	OpenedAt       time.Time  `gorm:"not null"`
	LastModifiedAt time.Time  `gorm:"not null"`
	ClosedAt       *time.Time `gorm:"index"`
}

func (TicketModel) TableName() string { return "tickets" }

type TicketEventModel struct {
	Seq          int64     `gorm:"primaryKey;autoIncrement"`
	TicketID     string    `gorm:"index:idx_ticket_events_order,priority:1;not null"`
	SemanticHash string    `gorm:"not null"`
	EventType    string    `gorm:"not null"`
	Payload      *string   `gorm:"type:text"`
	ObservedAt   time.Time `gorm:"index:idx_ticket_events_order,priority:2;not null"`
}

func (TicketEventModel) TableName() string { return "ticket_events" }

type DailyPaymentAuditModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	AuditDate     string    `gorm:"size:10;uniqueIndex;not null"`
	SourceACents  int64     `gorm:"column:source_a_amount_cents;not null"`
	SourceBCents  int64     `gorm:"column:source_b_amount_cents;not null"`
	SourceCCents  int64     `gorm:"column:source_c_amount_cents;not null"`
	POSTotalCents int64     `gorm:"column:pos_total_cents;not null"`
	VarianceCents int64     `gorm:"column:variance_cents;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (DailyPaymentAuditModel) TableName() string { return "daily_payment_audits" }

type DailyPaymentAuditRevisionModel struct {
	Seq           int64     `gorm:"primaryKey;autoIncrement"`
	AuditDate     string    `gorm:"size:10;index;not null"`
	SourceACents  int64     `gorm:"column:source_a_amount_cents;not null"`
	SourceBCents  int64     `gorm:"column:source_b_amount_cents;not null"`
	SourceCCents  int64     `gorm:"column:source_c_amount_cents;not null"`
	POSTotalCents int64     `gorm:"column:pos_total_cents;not null"`
	VarianceCents int64     `gorm:"column:variance_cents;not null"`
	RecordedAt    time.Time `gorm:"not null"`
}

func (DailyPaymentAuditRevisionModel) TableName() string { return "daily_payment_audit_revisions" }

// IssuedBagIDModel rows are never deleted.
type IssuedBagIDModel struct {
	BagID    string    `gorm:"primaryKey"`
	IssuedAt time.Time `gorm:"not null"`
}

func (IssuedBagIDModel) TableName() string { return "cash_bag_ids" }

type BagAssignmentModel struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	BagID            string    `gorm:"uniqueIndex;not null"`
	AssignmentDate   string    `gorm:"size:10;index;not null"`
	SourceSystem     string    `gorm:"not null"`
	SourceIdentifier string    `gorm:"not null"`
	ExpectedCents    int64     `gorm:"column:expected_amount_cents;not null"`
	EmployeeID       *string   `gorm:"column:employee_id"`
	POSDeviceID      *string   `gorm:"column:pos_device_id"`
	ShiftID          *string   `gorm:"column:shift_id"`
	CreatedAt        time.Time `gorm:"not null"`

	Verification *BagVerificationModel `gorm:"foreignKey:BagID;references:BagID;constraint:OnDelete:CASCADE"`
}

func (BagAssignmentModel) TableName() string { return "cash_bag_assignments" }

type BagVerificationModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	BagID         string    `gorm:"uniqueIndex;not null"`
	CountedCents  int64     `gorm:"column:counted_amount_cents;not null"`
	CountedBy     string    `gorm:"not null"`
	VarianceCents int64     `gorm:"column:variance_cents;not null"`
	Notes         *string   `gorm:"column:notes"`
	VerifiedAt    time.Time `gorm:"not null"`
}

func (BagVerificationModel) TableName() string { return "cash_bag_verifications" }

func allModels() []any {
	return []any{
		&TicketModel{},
		&TicketEventModel{},
		&DailyPaymentAuditModel{},
		&DailyPaymentAuditRevisionModel{},
		&IssuedBagIDModel{},
		&BagAssignmentModel{},
		&BagVerificationModel{},
	}
}
