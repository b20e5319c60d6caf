package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"voucherpipe/internal"
	"voucherpipe/internal/storage"
)

type AggregationService struct {
	db      *storage.DB
	jsonDir string
}

func NewAggregationService(db *storage.DB, jsonDir string) *AggregationService {
	return &AggregationService{db: db, jsonDir: jsonDir}
}

type AggregateResult struct {
	Documents int
	Rows      []internal.VoucherRow
	Failures  []internal.NormalizeFailure
}

// Aggregate normalizes every saved payload in the json directory, in
// lexicographic order, into one flat row sequence. Failures never abort the
// batch; each is recorded against its document and reported in the result.
func (s *AggregationService) Aggregate() (AggregateResult, error) {
	start := time.Now()

	paths, err := s.listPayloadFiles()
	if err != nil {
		return AggregateResult{}, err
	}

	result := AggregateResult{Documents: len(paths)}
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		fmt.Printf("  reading: %s\n", filepath.Base(path))

		raw, err := os.ReadFile(path)
		if err != nil {
			return result, err
		}

		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			// Hand the raw text to the normalizer; it gets one re-parse
			// attempt before the document is declared unusable.
			payload = string(raw)
		}

		rows, err := Normalize(stem, payload)
		if err != nil {
			fmt.Printf("  skipped: %s err=%v\n", stem, err)
			result.Failures = append(result.Failures, internal.NormalizeFailure{SourceName: stem, Reason: err.Error()})
			s.markDocument(stem, string(internal.StatusNormalizeFailed), err.Error())
			continue
		}

		result.Rows = append(result.Rows, rows...)
		s.markDocument(stem, string(internal.StatusAggregated), "")
	}

	traceID := uuid.New().String()
	counts := map[string]int{
		"documents": result.Documents,
		"rows":      len(result.Rows),
		"failures":  len(result.Failures),
	}
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	_ = s.db.InsertRun(traceID, counts, timings)

	return result, nil
}

func (s *AggregationService) listPayloadFiles() ([]string, error) {
	entries, err := os.ReadDir(s.jsonDir)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(s.jsonDir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// markDocument updates tracking state when the document is known to the db;
// --skip-extract replays can aggregate payloads the db never saw.
func (s *AggregationService) markDocument(stem, status, lastError string) {
	doc, err := s.db.GetDocumentByFilename(stem + ".pdf")
	if err != nil || doc == nil {
		return
	}
	if lastError != "" {
		_ = s.db.MarkDocumentFailed(doc.ID, status, lastError)
		return
	}
	_ = s.db.UpdateDocumentStatus(doc.ID, status)
}
