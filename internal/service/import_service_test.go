package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"gorm.io/gorm"
)

const genericExport = "symbol,direction,entry_price,exit_price,quantity,entry_time,exit_time,fees,external_id\n" +
	"ESZ4,long,5000,5010,1,2024-12-02 09:30:00,2024-12-02 10:00:00,4.50,a1\n" +
	"NQZ4,short,18000,17980,1,2024-12-02 11:00:00,2024-12-02 11:30:00,0,a2\n" +
	"ESZ4,long,abc,5010,1,2024-12-02 12:30:00,2024-12-02 13:00:00,0,a3\n"

type memoryResults struct {
	items map[string]*ImportSummary
}

func newMemoryResults() *memoryResults {
	return &memoryResults{items: make(map[string]*ImportSummary)}
}

func (m *memoryResults) Save(ctx context.Context, userID uint, summary *ImportSummary) error {
	m.items[fmt.Sprintf("%d/%s", userID, summary.ImportID)] = summary
	return nil
}

func (m *memoryResults) Load(ctx context.Context, userID uint, importID string) (*ImportSummary, error) {
	s, ok := m.items[fmt.Sprintf("%d/%s", userID, importID)]
	if !ok {
		return nil, ErrResultNotCached
	}
	return s, nil
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Store(ctx context.Context, userID uint, importID, fileName string, body []byte) (string, error) {
	args := m.Called(userID, importID, fileName, string(body))
	return args.String(0), args.Error(1)
}

type importFixture struct {
	svc     *ImportService
	db      *gorm.DB
	results *memoryResults
	archive *mockArchiver
}

func newImportFixture(t *testing.T, maxRows int) *importFixture {
	ledger, db := newLedger(t)
	f := &importFixture{db: db, results: newMemoryResults(), archive: &mockArchiver{}}
	f.svc = NewImportService(
		ledger,
		repository.NewImportBatchRepository(db),
		importer.DefaultRegistry(),
		f.results,
		f.archive,
		maxRows,
		zerolog.Nop(),
	)
	return f
}

func (f *importFixture) tradeCount(t *testing.T, userID uint) int64 {
	var count int64
	require.NoError(t, f.db.Model(&models.Trade{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestImport_DetectsAndStoresTrades(t *testing.T) {
	f := newImportFixture(t, 100)
	ctx := context.Background()

	f.archive.On("Store", uint(1), mock.Anything, "december.csv", genericExport).
		Return("imports/1/x/december.csv", nil).Once()

	summary, err := f.svc.Import(ctx, 1, &ImportRequest{FileName: "december.csv", Content: genericExport})
	require.NoError(t, err)
	f.archive.AssertExpectations(t)

	assert.True(t, summary.Success)
	assert.Equal(t, "generic", summary.Platform)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Imported)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.ErrorCount)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, 4, summary.Errors[0].Row)
	assert.Equal(t, "imports/1/x/december.csv", summary.ArchiveKey)
	assert.Equal(t, int64(2), f.tradeCount(t, 1))

	trades, _, err := repository.NewTradeRepository(f.db).Find(ctx, repository.TradeFilter{UserID: 1, Symbol: "ES"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.NotNil(t, trades[0].ImportBatchID)
	assert.Equal(t, summary.ImportID, *trades[0].ImportBatchID)
	assert.True(t, trades[0].NetPnl.Equal(decimal.RequireFromString("495.50")))

	cached, err := f.svc.GetResult(ctx, 1, summary.ImportID)
	require.NoError(t, err)
	assert.Same(t, summary, cached)

	batch, err := repository.NewImportBatchRepository(f.db).GetByIDAndUserID(ctx, summary.ImportID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Imported)
	assert.Equal(t, "december.csv", batch.FileName)
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	f := newImportFixture(t, 100)
	ctx := context.Background()
	f.archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	_, err := f.svc.Import(ctx, 1, &ImportRequest{Content: genericExport})
	require.NoError(t, err)

	again, err := f.svc.Import(ctx, 1, &ImportRequest{Content: genericExport})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 2, again.Duplicates)
	assert.True(t, again.Success)
	assert.Equal(t, int64(2), f.tradeCount(t, 1))

	// another user importing the same file gets their own copies
	other, err := f.svc.Import(ctx, 2, &ImportRequest{Content: genericExport})
	require.NoError(t, err)
	assert.Equal(t, 2, other.Imported)
}

func TestImport_DuplicateRowsInOneFile(t *testing.T) {
	f := newImportFixture(t, 100)
	f.archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	raw := "symbol,direction,entry_price,quantity,entry_time,external_id\n" +
		"ES,long,5000,1,2024-12-02 09:30:00,dup\n" +
		"ES,long,5000,1,2024-12-02 09:30:00,dup\n"

	summary, err := f.svc.Import(context.Background(), 1, &ImportRequest{Content: raw})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Duplicates)
}

func TestImport_UnknownPlatform(t *testing.T) {
	f := newImportFixture(t, 100)
	ctx := context.Background()

	_, err := f.svc.Import(ctx, 1, &ImportRequest{Content: "foo,bar\n1,2\n"})
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	_, err = f.svc.Import(ctx, 1, &ImportRequest{Platform: "robinhood", Content: genericExport})
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	_, err = f.svc.Import(ctx, 1, &ImportRequest{Content: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.tradeCount(t, 1))
}

func TestImport_TooManyRows(t *testing.T) {
	f := newImportFixture(t, 2)

	_, err := f.svc.Import(context.Background(), 1, &ImportRequest{Content: genericExport})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Zero(t, f.tradeCount(t, 1))
}

func TestImport_ManualMapping(t *testing.T) {
	f := newImportFixture(t, 100)
	f.archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	raw := "Ticker Name,Side,Px In,Qty,Opened\n" +
		"MESZ4,Buy,5000.25,2,2024-12-02 09:30:00\n"

	_, err := f.svc.Import(context.Background(), 1, &ImportRequest{Content: raw})
	require.ErrorIs(t, err, ErrUnknownPlatform)

	summary, err := f.svc.Import(context.Background(), 1, &ImportRequest{
		Content: raw,
		Mapping: map[importer.Field]string{
			importer.FieldSymbol:     "Ticker Name",
			importer.FieldDirection:  "Side",
			importer.FieldEntryPrice: "Px In",
			importer.FieldQuantity:   "Qty",
			importer.FieldEntryTime:  "Opened",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "mapped", summary.Platform)
	assert.Equal(t, 1, summary.Imported)

	_, err = f.svc.Import(context.Background(), 1, &ImportRequest{
		Content: raw,
		Mapping: map[importer.Field]string{importer.FieldSymbol: "Ticker Name"},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImport_PreviewWritesNothing(t *testing.T) {
	f := newImportFixture(t, 100)

	preview, err := f.svc.Preview(context.Background(), 1, &ImportRequest{Content: genericExport})
	require.NoError(t, err)

	assert.Equal(t, "generic", preview.Platform)
	assert.Equal(t, 3, preview.Total)
	assert.Equal(t, 2, preview.Parsed)
	assert.Len(t, preview.Trades, 2)
	assert.Len(t, preview.Errors, 1)
	assert.False(t, preview.Truncated)
	assert.Zero(t, f.tradeCount(t, 1))
	f.archive.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestImport_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newImportFixture(t, 100)
	f.archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("bucket unavailable"))

	summary, err := f.svc.Import(context.Background(), 1, &ImportRequest{Content: genericExport})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	assert.Contains(t, summary.Warnings, "raw file was not archived")
}

func TestImport_GetResultFallsBackToRecord(t *testing.T) {
	f := newImportFixture(t, 100)
	ctx := context.Background()
	f.archive.On("Store", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	summary, err := f.svc.Import(ctx, 1, &ImportRequest{FileName: "a.csv", Content: genericExport})
	require.NoError(t, err)

	// expire the cache
	f.results.items = make(map[string]*ImportSummary)

	got, err := f.svc.GetResult(ctx, 1, summary.ImportID)
	require.NoError(t, err)
	assert.Equal(t, summary.ImportID, got.ImportID)
	assert.Equal(t, 2, got.Imported)
	assert.Equal(t, 1, got.ErrorCount)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, 4, got.Errors[0].Row)
	assert.True(t, got.Success)

	_, err = f.svc.GetResult(ctx, 2, summary.ImportID)
	assert.ErrorIs(t, err, ErrImportNotFound)
}

func TestImport_Platforms(t *testing.T) {
	f := newImportFixture(t, 100)

	companion := map[string]bool{}
	for _, p := range f.svc.Platforms() {
		companion[p.Platform] = p.Companion
	}
	assert.True(t, companion["tradovate"])
	assert.True(t, companion["topstepx"])
	assert.False(t, companion["generic"])
	assert.Len(t, companion, 5)
}

func TestFirstErrors(t *testing.T) {
	errs := make([]importer.RowError, 15)
	assert.Len(t, firstErrors(errs), maxReportedErrors)
	assert.Len(t, firstErrors(errs[:3]), 3)
}
