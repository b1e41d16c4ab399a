package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/trade-ledger/internal/importer"
	"github.com/trade-ledger/internal/models"
	"github.com/trade-ledger/internal/repository"
	"github.com/trade-ledger/pkg/keygen"
	"gorm.io/datatypes"
)

const (
	// maxReportedErrors bounds the row errors returned to the client; the
	// import record keeps all of them
	maxReportedErrors = 10
	maxPreviewTrades  = 50
)

// Archiver keeps a copy of raw import files
type Archiver interface {
	Store(ctx context.Context, userID uint, importID, fileName string, body []byte) (string, error)
}

// ImportService turns platform exports into ledger trades
type ImportService struct {
	ledger   *LedgerService
	batches  *repository.ImportBatchRepository
	registry *importer.Registry
	results  ImportResultStore
	archive  Archiver
	maxRows  int
	now      func() time.Time
	log      zerolog.Logger
}

// NewImportService creates a new ImportService. results and archive may be nil.
func NewImportService(
	ledger *LedgerService,
	batches *repository.ImportBatchRepository,
	registry *importer.Registry,
	results ImportResultStore,
	archive Archiver,
	maxRows int,
	log zerolog.Logger,
) *ImportService {
	return &ImportService{
		ledger:   ledger,
		batches:  batches,
		registry: registry,
		results:  results,
		archive:  archive,
		maxRows:  maxRows,
		now:      time.Now,
		log:      log.With().Str("service", "import").Logger(),
	}
}

// ImportRequest carries one export. Platform is detected from the header row
// when empty; Mapping selects the manual column mapping instead.
type ImportRequest struct {
	Platform         string                    `json:"platform"`
	AccountID        *uint                     `json:"account_id"`
	FileName         string                    `json:"file_name"`
	Content          string                    `json:"content"`
	CompanionContent string                    `json:"companion_content"`
	Mapping          map[importer.Field]string `json:"mapping"`
}

// ImportSummary is the outcome of an import
type ImportSummary struct {
	ImportID   string              `json:"import_id" msgpack:"import_id"`
	Platform   string              `json:"platform" msgpack:"platform"`
	FileName   string              `json:"file_name" msgpack:"file_name"`
	Success    bool                `json:"success" msgpack:"success"`
	Total      int                 `json:"total" msgpack:"total"`
	Imported   int                 `json:"imported" msgpack:"imported"`
	Duplicates int                 `json:"duplicates" msgpack:"duplicates"`
	Skipped    int                 `json:"skipped" msgpack:"skipped"`
	ErrorCount int                 `json:"error_count" msgpack:"error_count"`
	Errors     []importer.RowError `json:"errors" msgpack:"errors"`
	Warnings   []string            `json:"warnings" msgpack:"warnings"`
	ArchiveKey string              `json:"archive_key,omitempty" msgpack:"archive_key"`
	CreatedAt  time.Time           `json:"created_at" msgpack:"created_at"`
}

// ImportPreview shows what an import would do without writing anything
type ImportPreview struct {
	Platform   string              `json:"platform"`
	Total      int                 `json:"total"`
	Parsed     int                 `json:"parsed"`
	Duplicates int                 `json:"duplicates"`
	Skipped    int                 `json:"skipped"`
	Errors     []importer.RowError `json:"errors"`
	Warnings   []string            `json:"warnings"`
	Trades     []importer.Draft    `json:"trades"`
	Truncated  bool                `json:"truncated"`
}

// PlatformInfo describes a supported export format
type PlatformInfo struct {
	Platform  string `json:"platform"`
	Companion bool   `json:"companion"`
}

type preparedImport struct {
	platform   string
	result     importer.ParseResult
	fresh      []importer.Draft
	duplicates int
	skipped    int
	errors     []importer.RowError
}

// Import parses an export and stores every new trade in one transaction.
// Rows whose external id the user already has are counted as duplicates.
func (s *ImportService) Import(ctx context.Context, userID uint, req *ImportRequest) (*ImportSummary, error) {
	prep, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	importID := keygen.NewImportID()
	if len(prep.fresh) > 0 {
		if _, err := s.ledger.BatchCreate(ctx, userID, req.AccountID, importID, prep.fresh); err != nil {
			return nil, err
		}
	}

	summary := &ImportSummary{
		ImportID:   importID,
		Platform:   prep.platform,
		FileName:   req.FileName,
		Total:      prep.result.TotalRows,
		Imported:   len(prep.fresh),
		Duplicates: prep.duplicates,
		Skipped:    prep.skipped,
		ErrorCount: len(prep.errors),
		Errors:     firstErrors(prep.errors),
		Warnings:   prep.result.Warnings,
		CreatedAt:  s.now().UTC(),
	}
	summary.Success = summary.Imported+summary.Duplicates > 0

	if s.archive != nil {
		key, err := s.archive.Store(ctx, userID, importID, req.FileName, []byte(req.Content))
		if err != nil {
			s.log.Warn().Err(err).Str("import_id", importID).Msg("failed to archive import file")
			summary.Warnings = append(summary.Warnings, "raw file was not archived")
		}
		summary.ArchiveKey = key
		if err == nil && req.CompanionContent != "" {
			if _, err := s.archive.Store(ctx, userID, importID, "companion.csv", []byte(req.CompanionContent)); err != nil {
				s.log.Warn().Err(err).Str("import_id", importID).Msg("failed to archive companion file")
			}
		}
	}

	batch := &models.ImportBatch{
		ID:          importID,
		UserID:      userID,
		AccountID:   req.AccountID,
		Platform:    prep.platform,
		FileName:    req.FileName,
		TotalRows:   summary.Total,
		Imported:    summary.Imported,
		Duplicates:  summary.Duplicates,
		SkippedRows: summary.Skipped,
		Errors:      jsonColumn(prep.errors),
		Warnings:    jsonColumn(summary.Warnings),
		ArchiveKey:  summary.ArchiveKey,
		CreatedAt:   summary.CreatedAt,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		s.log.Error().Err(err).Str("import_id", importID).Msg("failed to record import batch")
	}

	if s.results != nil {
		if err := s.results.Save(ctx, userID, summary); err != nil {
			s.log.Warn().Err(err).Str("import_id", importID).Msg("failed to cache import result")
		}
	}

	s.log.Info().
		Uint("user_id", userID).
		Str("import_id", importID).
		Str("platform", prep.platform).
		Int("imported", summary.Imported).
		Int("duplicates", summary.Duplicates).
		Int("skipped", summary.Skipped).
		Msg("import finished")

	return summary, nil
}

// Preview parses an export and reports what Import would store
func (s *ImportService) Preview(ctx context.Context, userID uint, req *ImportRequest) (*ImportPreview, error) {
	prep, err := s.prepare(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{
		Platform:   prep.platform,
		Total:      prep.result.TotalRows,
		Parsed:     prep.result.ParsedRows,
		Duplicates: prep.duplicates,
		Skipped:    prep.skipped,
		Errors:     prep.errors,
		Warnings:   prep.result.Warnings,
		Trades:     prep.fresh,
	}
	if len(preview.Trades) > maxPreviewTrades {
		preview.Trades = preview.Trades[:maxPreviewTrades]
		preview.Truncated = true
	}
	return preview, nil
}

// GetResult returns the summary of a past import, from the cache when it
// is still there and from the import record otherwise
func (s *ImportService) GetResult(ctx context.Context, userID uint, importID string) (*ImportSummary, error) {
	if s.results != nil {
		summary, err := s.results.Load(ctx, userID, importID)
		if err == nil {
			return summary, nil
		}
		if !errors.Is(err, ErrResultNotCached) {
			s.log.Warn().Err(err).Str("import_id", importID).Msg("failed to read cached import result")
		}
	}

	batch, err := s.batches.GetByIDAndUserID(ctx, importID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrImportNotFound) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return summaryFromBatch(batch), nil
}

// ListImports returns the user's most recent imports
func (s *ImportService) ListImports(ctx context.Context, userID uint, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return s.batches.ListByUserID(ctx, userID, limit)
}

// Platforms lists the supported export formats
func (s *ImportService) Platforms() []PlatformInfo {
	platforms := s.registry.Platforms()
	out := make([]PlatformInfo, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, PlatformInfo{Platform: p, Companion: s.registry.SupportsCompanion(p)})
	}
	return out
}

func (s *ImportService) prepare(ctx context.Context, userID uint, req *ImportRequest) (*preparedImport, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, invalid("content", "required")
	}

	parser, err := s.resolveParser(req)
	if err != nil {
		return nil, err
	}

	res := s.parse(parser, req)
	if s.maxRows > 0 && res.TotalRows > s.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, res.TotalRows, s.maxRows)
	}

	prep := &preparedImport{
		platform: parser.Platform(),
		result:   res,
		skipped:  res.SkippedRows,
		errors:   append([]importer.RowError(nil), res.Errors...),
	}

	valid := make([]importer.Draft, 0, len(res.Trades))
	ids := make([]string, 0, len(res.Trades))
	for _, d := range res.Trades {
		if err := ValidateDraft(d); err != nil {
			prep.errors = append(prep.errors, importer.RowError{Row: d.RowNumber, Message: err.Error()})
			prep.skipped++
			continue
		}
		valid = append(valid, d)
		if d.ExternalID != "" {
			ids = append(ids, d.ExternalID)
		}
	}

	existing, err := s.ledger.KnownExternalIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ids))
	for _, d := range valid {
		if d.ExternalID != "" {
			if existing[d.ExternalID] || seen[d.ExternalID] {
				prep.duplicates++
				continue
			}
			seen[d.ExternalID] = true
		}
		prep.fresh = append(prep.fresh, d)
	}

	sort.SliceStable(prep.errors, func(i, j int) bool {
		return prep.errors[i].Row < prep.errors[j].Row
	})
	return prep, nil
}

func (s *ImportService) resolveParser(req *ImportRequest) (importer.Parser, error) {
	if len(req.Mapping) > 0 {
		p, err := importer.NewMappedParser(req.Mapping)
		if err != nil {
			return nil, invalid("mapping", err.Error())
		}
		return p, nil
	}

	if req.Platform != "" {
		p, ok := s.registry.Get(req.Platform)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, req.Platform)
		}
		return p, nil
	}

	p, ok := s.registry.DetectRaw(req.Content)
	if !ok {
		return nil, fmt.Errorf("%w: headers match no supported platform", ErrUnknownPlatform)
	}
	return p, nil
}

func (s *ImportService) parse(parser importer.Parser, req *ImportRequest) importer.ParseResult {
	if req.CompanionContent == "" {
		return parser.Parse(req.Content)
	}
	if cp, ok := parser.(importer.CorrelatedParser); ok {
		return cp.ParseCorrelated(req.Content, req.CompanionContent)
	}

	res := parser.Parse(req.Content)
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s exports have no companion file, it was ignored", parser.Platform()))
	return res
}

func firstErrors(errs []importer.RowError) []importer.RowError {
	if len(errs) > maxReportedErrors {
		return errs[:maxReportedErrors]
	}
	return errs
}

func jsonColumn(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

func summaryFromBatch(b *models.ImportBatch) *ImportSummary {
	summary := &ImportSummary{
		ImportID:   b.ID,
		Platform:   b.Platform,
		FileName:   b.FileName,
		Total:      b.TotalRows,
		Imported:   b.Imported,
		Duplicates: b.Duplicates,
		Skipped:    b.SkippedRows,
		ArchiveKey: b.ArchiveKey,
		CreatedAt:  b.CreatedAt,
	}
	summary.Success = summary.Imported+summary.Duplicates > 0

	var rowErrors []importer.RowError
	if len(b.Errors) > 0 {
		_ = json.Unmarshal(b.Errors, &rowErrors)
	}
	summary.ErrorCount = len(rowErrors)
	summary.Errors = firstErrors(rowErrors)

	if len(b.Warnings) > 0 {
		_ = json.Unmarshal(b.Warnings, &summary.Warnings)
	}
	return summary
}
