package service

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"stockledger-api/internal/model"
)

// maxExportRows bounds a single workbook.
const maxExportRows = 50000

var exportHeader = []interface{}{
	"id", "created_at", "group_id", "type", "item_id", "item_name", "warehouse_id",
	"delta", "quantity_after", "recipient", "notes", "user_id", "user_name",
	"expected_quantity", "actual_quantity", "discrepancy", "audit_id",
}

// ExportTransactions writes the filtered ledger history to w as an XLSX
// workbook. The same scoping rules as TransactionHistory apply.
func (s *ReportService) ExportTransactions(ctx context.Context, caller *model.Identity, f model.TransactionFilter, w io.Writer) (int, error) {
	if f.Limit <= 0 || f.Limit > maxExportRows {
		f.Limit = maxExportRows
	}
	txs, err := s.TransactionHistory(ctx, caller, f)
	if err != nil {
		return 0, err
	}

	items := make(map[int64]*model.Item)
	users := make(map[int64]string)
	if caller.IsAdmin() {
		all, err := s.store.ListUsers(ctx)
		if err != nil {
			return 0, err
		}
		for _, u := range all {
			users[u.ID] = u.Name
		}
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := "Transactions"
	if err := file.SetSheetName(file.GetSheetName(file.GetActiveSheetIndex()), sheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := file.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for i, tx := range txs {
		item, ok := items[tx.ItemID]
		if !ok {
			item, err = s.store.GetItem(ctx, tx.ItemID)
			if err != nil {
				item = &model.Item{ID: tx.ItemID}
			}
			items[tx.ItemID] = item
		}

		row := []interface{}{
			tx.ID,
			tx.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			tx.GroupID,
			tx.Type.Label(),
			tx.ItemID,
			item.Name,
			item.WarehouseID,
			tx.Delta,
			tx.QuantityAfter,
			tx.Recipient,
			tx.Notes,
			tx.UserID,
			users[tx.UserID],
			optional(tx.ExpectedQuantity),
			optional(tx.ActualQuantity),
			optional(tx.Discrepancy),
			optional(tx.AuditID),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, fmt.Errorf("failed to address row: %w", err)
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return 0, fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err := file.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(txs), nil
}

func optional(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
