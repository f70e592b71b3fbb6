package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockCategory is a class of physical paper stock tracked independently.
type StockCategory string

const (
	CategoryIndividual StockCategory = "individual"
	CategoryCorporate  StockCategory = "corporate"
	CategoryCertified  StockCategory = "certified"
)

// StockCategories lists every category seeded at bootstrap.
var StockCategories = []StockCategory{CategoryIndividual, CategoryCorporate, CategoryCertified}

func (c StockCategory) IsValid() bool {
	switch c {
	case CategoryIndividual, CategoryCorporate, CategoryCertified:
		return true
	}
	return false
}

// ParseStockCategory normalizes s and rejects unknown categories.
func ParseStockCategory(s string) (StockCategory, error) {
	c := StockCategory(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", validationf("unknown stock category %q (expected individual, corporate or certified)", s)
	}
	return c, nil
}

// InstrumentType distinguishes the printed instrument classes.
type InstrumentType string

const (
	InstrumentIndividual InstrumentType = "individual"
	InstrumentCorporate  InstrumentType = "corporate"
	InstrumentCertified  InstrumentType = "certified"
)

type instrumentInfo struct {
	code        string
	category    StockCategory
	tracksUnits bool
}

// instrumentTable is the single source of the MICR type codes and the paper
// stock each instrument class consumes. The codes are read by sorting
// equipment and must not change.
var instrumentTable = map[InstrumentType]instrumentInfo{
	InstrumentIndividual: {code: "01", category: CategoryIndividual},
	InstrumentCorporate:  {code: "02", category: CategoryCorporate},
	InstrumentCertified:  {code: "03", category: CategoryCertified, tracksUnits: true},
}

func (t InstrumentType) IsValid() bool {
	_, ok := instrumentTable[t]
	return ok
}

// Code returns the 2-character MICR type code, or "" for an unknown type.
func (t InstrumentType) Code() string { return instrumentTable[t].code }

// Category returns the stock category the instrument is printed on.
func (t InstrumentType) Category() StockCategory { return instrumentTable[t].category }

// TracksUnits reports whether every printed unit gets its own tracking record.
func (t InstrumentType) TracksUnits() bool { return instrumentTable[t].tracksUnits }

// ParseInstrumentType normalizes s and rejects unknown instrument types.
func ParseInstrumentType(s string) (InstrumentType, error) {
	t := InstrumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", validationf("unknown instrument type %q (expected individual, corporate or certified)", s)
	}
	return t, nil
}

type OperationType string

const (
	OperationPrint   OperationType = "print"
	OperationReprint OperationType = "reprint"
)

// ParseOperationType accepts "" as "any".
func ParseOperationType(s string) (OperationType, error) {
	op := OperationType(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case "", OperationPrint, OperationReprint:
		return op, nil
	}
	return "", validationf("unknown operation type %q (expected print or reprint)", s)
}

// ReprintReason is the business justification for a reprint. It decides
// whether inventory is charged again; see InventoryEffect.
type ReprintReason string

const (
	ReasonDamaged    ReprintReason = "damaged"
	ReasonNotPrinted ReprintReason = "not_printed"
)

func (r ReprintReason) IsValid() bool {
	return r == ReasonDamaged || r == ReasonNotPrinted
}

// ParseReprintReason never defaults: an absent reason is a request error.
func ParseReprintReason(s string) (ReprintReason, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return "", validationf("reprint reason is required (damaged or not_printed)")
	}
	r := ReprintReason(trimmed)
	if !r.IsValid() {
		return "", validationf("invalid reprint reason %q (expected damaged or not_printed)", s)
	}
	return r, nil
}

// InventoryEffect is what a ledger operation does to paper stock.
type InventoryEffect int

const (
	EffectNone InventoryEffect = iota
	EffectDeduct
)

// InventoryEffect maps a reprint reason to its stock policy. Damaged paper was
// consumed and wasted so it is charged again; a range that was never printed
// used no paper.
func (r ReprintReason) InventoryEffect() InventoryEffect {
	switch r {
	case ReasonDamaged:
		return EffectDeduct
	default:
		return EffectNone
	}
}

// Branch is a bank branch that orders cheque books. Routing numbers feed the
// encoded line; names appear in conflict reports.
type Branch struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	RoutingNumber string `json:"routing_number"`
}

// BranchSerialCounter holds the highest serial ever committed for a branch.
// CustomStartSerial is the last manually requested start, kept for audit only.
type BranchSerialCounter struct {
	BranchID          int64     `json:"branch_id"`
	LastSerial        int64     `json:"last_serial"`
	CustomStartSerial *int64    `json:"custom_start_serial,omitempty"`
	Exists            bool      `json:"exists"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// LedgerEntry is one immutable, audited print or reprint operation.
type LedgerEntry struct {
	ID                int64          `json:"id"`
	BranchID          int64          `json:"branch_id"`
	InstrumentType    InstrumentType `json:"instrument_type"`
	AccountRef        string         `json:"account_ref"`
	FirstSerial       int64          `json:"first_serial"`
	LastSerial        int64          `json:"last_serial"`
	TotalUnits        int64          `json:"total_units"`
	UnitsPerBook      int64          `json:"units_per_book"`
	NumberOfBooks     int64          `json:"number_of_books"`
	OperationType     OperationType  `json:"operation_type"`
	ReprintReason     ReprintReason  `json:"reprint_reason,omitempty"`
	OriginalEntryID   *int64         `json:"original_entry_id,omitempty"`
	CustomStartSerial *int64         `json:"custom_start_serial,omitempty"`
	OperatorID        string         `json:"operator_id"`
	Notes             string         `json:"notes,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Range returns the serial range the entry covers.
func (e LedgerEntry) Range() SerialRange {
	return SerialRange{First: e.FirstSerial, Last: e.LastSerial}
}

// PrintedUnit tracks one instrument number of an individually tracked entry.
type PrintedUnit struct {
	AccountRef    string    `json:"account_ref"`
	UnitNumber    int64     `json:"unit_number"`
	LedgerEntryID int64     `json:"ledger_entry_id"`
	CanReprint    bool      `json:"can_reprint"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InventoryStock is the current paper quantity of one category.
type InventoryStock struct {
	Category  StockCategory   `json:"category"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Value is quantity x weighted average unit cost.
func (s InventoryStock) Value() decimal.Decimal {
	return s.UnitCost.Mul(decimal.NewFromInt(s.Quantity))
}

type InventoryTxnType string

const (
	InventoryAdd    InventoryTxnType = "ADD"
	InventoryDeduct InventoryTxnType = "DEDUCT"
)

// InventoryTransaction is an append-only record of a stock mutation.
type InventoryTransaction struct {
	ID            int64            `json:"id"`
	Category      StockCategory    `json:"category"`
	Type          InventoryTxnType `json:"type"`
	Quantity      int64            `json:"quantity"`
	UnitCost      decimal.Decimal  `json:"unit_cost"`
	OperatorID    string           `json:"operator_id"`
	FirstSerial   *int64           `json:"first_serial,omitempty"`
	LastSerial    *int64           `json:"last_serial,omitempty"`
	LedgerEntryID *int64           `json:"ledger_entry_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Conflict identifies the ledger entry an overlapping candidate collided with.
type Conflict struct {
	EntryID     int64  `json:"entry_id"`
	BranchID    int64  `json:"branch_id"`
	BranchName  string `json:"branch_name"`
	FirstSerial int64  `json:"first_serial"`
	LastSerial  int64  `json:"last_serial"`
}

// EntryFilter narrows ListEntries. Zero values mean "any".
type EntryFilter struct {
	BranchID      int64
	OperationType OperationType
	Limit         int
}

// ConservationReport compares a category's stock with its transaction history.
type ConservationReport struct {
	Category StockCategory `json:"category"`
	Quantity int64         `json:"quantity"`
	Added    int64         `json:"added"`
	Deducted int64         `json:"deducted"`
	Balanced bool          `json:"balanced"`
}

func int64Ptr(v int64) *int64 { return &v }
