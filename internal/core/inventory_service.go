package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddStockRequest records paper received into a category.
type AddStockRequest struct {
	Category   StockCategory
	Quantity   int64
	UnitCost   decimal.Decimal // zero keeps the current average cost
	OperatorID string
	Notes      string
}

// DeductStockRequest records paper consumed from a category.
type DeductStockRequest struct {
	Category   StockCategory
	Quantity   int64
	OperatorID string
	Notes      string

	// Set by the coordinator when the deduction pays for a ledger entry.
	Range         *SerialRange
	LedgerEntryID *int64
}

// InventoryLedger tracks paper stock per category. Every change is paired with
// an InventoryTransaction written in the same store transaction, so the stock
// quantity always equals the sum of ADD minus DEDUCT rows.
type InventoryLedger struct {
	store  Store
	logger *zap.Logger
}

func NewInventoryLedger(store Store, logger *zap.Logger) *InventoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryLedger{store: store, logger: logger.Named("inventory")}
}

// ── Standalone operations ─────────────────────────────────────────────────────

// AddStock increments stock and re-averages the unit cost:
//
//	new_cost = (old_qty * old_cost + qty * unit_cost) / (old_qty + qty)
func (l *InventoryLedger) AddStock(ctx context.Context, req AddStockRequest) (*InventoryStock, error) {
	if err := validateStockChange(req.Category, req.Quantity, req.OperatorID); err != nil {
		return nil, err
	}
	if req.UnitCost.IsNegative() {
		return nil, validationf("unit cost cannot be negative, got %s", req.UnitCost)
	}

	var result InventoryStock
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		stock, err := tx.LockStock(ctx, req.Category)
		if err != nil {
			return err
		}

		cost := stock.UnitCost
		if !req.UnitCost.IsZero() {
			oldQty := decimal.NewFromInt(stock.Quantity)
			addQty := decimal.NewFromInt(req.Quantity)
			cost = oldQty.Mul(stock.UnitCost).Add(addQty.Mul(req.UnitCost)).Div(oldQty.Add(addQty))
		}

		stock.Quantity += req.Quantity
		stock.UnitCost = cost
		if err := tx.UpdateStock(ctx, *stock); err != nil {
			return err
		}

		notes := req.Notes
		if notes == "" {
			notes = fmt.Sprintf("Stock receipt: %d units of %s", req.Quantity, req.Category)
		}
		if err := tx.InsertInventoryTransaction(ctx, &InventoryTransaction{
			Category:   req.Category,
			Type:       InventoryAdd,
			Quantity:   req.Quantity,
			UnitCost:   req.UnitCost,
			OperatorID: req.OperatorID,
			Notes:      notes,
		}); err != nil {
			return err
		}
		result = *stock
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock added",
		zap.String("category", string(req.Category)),
		zap.Int64("quantity", req.Quantity),
		zap.Int64("on_hand", result.Quantity),
		zap.String("operator_id", req.OperatorID),
	)
	return &result, nil
}

// DeductStock removes stock in its own transaction. It fails with an
// *InsufficientStockError and changes nothing when stock is short.
func (l *InventoryLedger) DeductStock(ctx context.Context, req DeductStockRequest) (*InventoryStock, error) {
	var result *InventoryStock
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, err = l.DeductStockTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckConservation recomputes ΣADD − ΣDEDUCT for a category.
func (l *InventoryLedger) CheckConservation(ctx context.Context, category StockCategory) (*ConservationReport, error) {
	if !category.IsValid() {
		return nil, validationf("unknown stock category %q", category)
	}
	stock, err := l.store.GetStock(ctx, category)
	if err != nil {
		return nil, err
	}
	added, deducted, err := l.store.SumInventoryTransactions(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to sum inventory transactions for %s: %w", category, err)
	}
	return &ConservationReport{
		Category: category,
		Quantity: stock.Quantity,
		Added:    added,
		Deducted: deducted,
		Balanced: added-deducted == stock.Quantity,
	}, nil
}

func (l *InventoryLedger) ListStock(ctx context.Context) ([]InventoryStock, error) {
	return l.store.ListStock(ctx)
}

func (l *InventoryLedger) ListTransactions(ctx context.Context, category StockCategory, limit int) ([]InventoryTransaction, error) {
	if !category.IsValid() {
		return nil, validationf("unknown stock category %q", category)
	}
	return l.store.ListInventoryTransactions(ctx, category, limit)
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

// DeductStockTx locks the category row, checks availability and writes the
// decrement plus its DEDUCT row inside the caller's transaction. Nothing is
// written when stock is short.
func (l *InventoryLedger) DeductStockTx(ctx context.Context, tx Tx, req DeductStockRequest) (*InventoryStock, error) {
	if err := validateStockChange(req.Category, req.Quantity, req.OperatorID); err != nil {
		return nil, err
	}

	stock, err := tx.LockStock(ctx, req.Category)
	if err != nil {
		return nil, err
	}
	if stock.Quantity < req.Quantity {
		return nil, &InsufficientStockError{Category: req.Category, Available: stock.Quantity, Required: req.Quantity}
	}

	stock.Quantity -= req.Quantity
	if err := tx.UpdateStock(ctx, *stock); err != nil {
		return nil, err
	}

	txn := &InventoryTransaction{
		Category:      req.Category,
		Type:          InventoryDeduct,
		Quantity:      req.Quantity,
		UnitCost:      stock.UnitCost,
		OperatorID:    req.OperatorID,
		LedgerEntryID: req.LedgerEntryID,
		Notes:         req.Notes,
	}
	if req.Range != nil {
		txn.FirstSerial = int64Ptr(req.Range.First)
		txn.LastSerial = int64Ptr(req.Range.Last)
	}
	if err := tx.InsertInventoryTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return stock, nil
}

func validateStockChange(category StockCategory, quantity int64, operatorID string) error {
	if !category.IsValid() {
		return validationf("unknown stock category %q", category)
	}
	if quantity <= 0 {
		return validationf("quantity must be positive, got %d", quantity)
	}
	if operatorID == "" {
		return validationf("operator id is required")
	}
	return nil
}
