package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"stockledger-api/internal/model"
)

func TestWarehouseTotalsCacheInvalidatedOnCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, f.main, "Bolts", 10)

	totals, err := f.reports.WarehouseTotals(ctx, f.admin, nil)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "Main", totals[0].WarehouseName)
	assert.Equal(t, int64(10), totals[0].TotalQuantity)

	// A write that bypasses the engine is not seen until the next commit.
	_, err = f.store.ApplyDelta(ctx, item.ID, 5)
	require.NoError(t, err)
	totals, err = f.reports.WarehouseTotals(ctx, f.admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), totals[0].TotalQuantity)

	_, err = f.engine.Issue(ctx, f.employee, IssueInput{ItemID: item.ID, Quantity: 1, Recipient: "r"})
	require.NoError(t, err)
	totals, err = f.reports.WarehouseTotals(ctx, f.admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(14), totals[0].TotalQuantity)

	scoped, err := f.reports.WarehouseTotals(ctx, f.employee, nil)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, f.main.ID, scoped[0].WarehouseID)

	_, err = f.reports.WarehouseTotals(ctx, f.employee, &f.north.ID)
	requireKind(t, err, KindAuthorization)
}

func TestCategoryDistributionAndLowInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tools, err := f.catalog.CreateCategory(ctx, f.admin, CategoryInput{Name: "Tools"})
	require.NoError(t, err)
	_, err = f.catalog.CreateCategory(ctx, f.employee, CategoryInput{Name: "Food"})
	requireKind(t, err, KindAuthorization)

	_, err = f.catalog.CreateItem(ctx, f.admin, ItemInput{Name: "Hammer", WarehouseID: f.main.ID, CategoryID: &tools.ID, Quantity: 2})
	require.NoError(t, err)
	f.item(t, f.main, "Loose", 20)
	f.item(t, f.north, "Far", 1)

	dist, err := f.reports.CategoryDistribution(ctx, f.employee, nil)
	require.NoError(t, err)
	require.Len(t, dist, 2)
	byName := map[string]model.CategoryCount{}
	for _, c := range dist {
		byName[c.CategoryName] = c
	}
	assert.Equal(t, int64(2), byName["Tools"].TotalQuantity)
	assert.Equal(t, int64(20), byName["Uncategorized"].TotalQuantity)

	low, err := f.reports.LowInventory(ctx, f.employee, nil, nil)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "Hammer", low[0].Name)

	all, err := f.reports.LowInventory(ctx, f.admin, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	high := int64(50)
	low, err = f.reports.LowInventory(ctx, f.employee, nil, &high)
	require.NoError(t, err)
	assert.Len(t, low, 2)
}

func TestTransactionHistoryScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mainItem := f.item(t, f.main, "Tarp", 5)
	northItem := f.item(t, f.north, "Tarp", 5)

	_, err := f.engine.Issue(ctx, f.employee, IssueInput{ItemID: mainItem.ID, Quantity: 1, Recipient: "r"})
	require.NoError(t, err)
	_, err = f.engine.Issue(ctx, f.outsider, IssueInput{ItemID: northItem.ID, Quantity: 1, Recipient: "r"})
	require.NoError(t, err)

	txs, err := f.reports.TransactionHistory(ctx, f.employee, model.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 2, "initial stock and the issue in Main")

	mine, err := f.reports.TransactionHistory(ctx, f.employee, model.TransactionFilter{UserID: &f.employee.UserID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.TxIssue, mine[0].Type)

	_, err = f.reports.TransactionHistory(ctx, f.employee, model.TransactionFilter{UserID: &f.outsider.UserID})
	requireKind(t, err, KindAuthorization)

	issue := model.TxIssue
	issues, err := f.reports.TransactionHistory(ctx, f.admin, model.TransactionFilter{Type: &issue})
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	from, to := time.Now(), time.Now().Add(-time.Hour)
	_, err = f.reports.TransactionHistory(ctx, f.admin, model.TransactionFilter{From: &from, To: &to})
	requireKind(t, err, KindValidation)

	_, err = f.reports.Drift(ctx, f.employee, nil)
	requireKind(t, err, KindAuthorization)
}

func TestDiscrepancies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, f.main, "Paint", 3)

	audit, err := f.audits.Create(ctx, f.admin, CreateAuditInput{WarehouseID: f.main.ID, AuditType: model.AuditSpot})
	require.NoError(t, err)
	_, err = f.audits.Start(ctx, f.admin, audit.ID)
	require.NoError(t, err)
	_, err = f.audits.AddDetail(ctx, f.admin, audit.ID, AddDetailInput{ItemID: item.ID, ActualQuantity: 3})
	require.NoError(t, err)
	_, err = f.audits.AddDetail(ctx, f.admin, audit.ID, AddDetailInput{ItemID: item.ID, ActualQuantity: 1})
	require.NoError(t, err)

	found, err := f.reports.Discrepancies(ctx, f.employee, model.DiscrepancyFilter{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(-2), found[0].Discrepancy)

	none, err := f.reports.Discrepancies(ctx, f.outsider, model.DiscrepancyFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.reports.Discrepancies(ctx, f.outsider, model.DiscrepancyFilter{AuditID: &audit.ID})
	requireKind(t, err, KindAuthorization)
}

func TestExportTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, f.main, "Ladder", 4)
	_, err := f.engine.Issue(ctx, f.employee, IssueInput{ItemID: item.ID, Quantity: 1, Recipient: "Crew"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.reports.ExportTransactions(ctx, f.admin, model.TransactionFilter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	book, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "Issue", rows[1][3], "newest entry first")
	assert.Equal(t, "Ladder", rows[1][5])
	assert.Equal(t, "Eve", rows[1][12])

	_, err = f.reports.ExportTransactions(ctx, f.outsider, model.TransactionFilter{WarehouseID: &f.main.ID}, &buf)
	requireKind(t, err, KindAuthorization)
}
