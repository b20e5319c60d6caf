package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voucherpipe/internal"
	"voucherpipe/internal/config"
	"voucherpipe/internal/storage"
)

type Service struct {
	db      *storage.DB
	cfg     config.Config
	client  *Client
	jsonDir string
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg, client: NewClient(cfg), jsonDir: cfg.JSONDir}
}

type Summary struct {
	Processed    int
	Skipped      int
	Failed       int
	StoppedEarly bool
}

// ProcessPending extracts only documents the fetch stage left in status
// fetched. Documents already extracted or aggregated never reach the
// client again, so reruns do not re-spend quota.
func (s *Service) ProcessPending(ctx context.Context, limit int) (Summary, error) {
	docs, err := s.db.ListDocumentsByStatus(string(internal.StatusFetched), limit)
	if err != nil {
		return Summary{}, err
	}

	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		paths = append(paths, doc.PDFRef)
	}
	return s.ProcessPDFs(ctx, paths)
}

// ProcessPDFs extracts each PDF into one <stem>.json under the json
// directory. Documents already past extraction are skipped. Per-document
// failures are recorded and skipped; a quota error stops the loop so
// leftover documents stay pending for a later run.
func (s *Service) ProcessPDFs(ctx context.Context, pdfPaths []string) (Summary, error) {
	if err := s.cfg.Require("GENAI_API_KEY", s.cfg.GenAIAPIKey); err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(s.jsonDir, 0o755); err != nil {
		return Summary{}, err
	}

	sorted := append([]string(nil), pdfPaths...)
	sort.Strings(sorted)

	summary := Summary{}
	for _, pdfPath := range sorted {
		filename := filepath.Base(pdfPath)
		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		jsonPath := filepath.Join(s.jsonDir, stem+".json")

		blob, err := os.ReadFile(pdfPath)
		if err != nil {
			return summary, err
		}

		doc, err := s.ensureDocument(filename, pdfPath, blob)
		if err != nil {
			return summary, err
		}
		switch doc.Status {
		case string(internal.StatusSkipped):
			continue
		case string(internal.StatusExtracted), string(internal.StatusAggregated):
			fmt.Printf("  already extracted: %s\n", filename)
			summary.Skipped++
			continue
		}

		fmt.Printf("  extracting: %s\n", filename)
		payload, err := s.client.ExtractPDF(ctx, blob)
		if errors.Is(err, ErrQuotaExhausted) {
			summary.StoppedEarly = true
			return summary, err
		}
		if err != nil {
			fmt.Printf("  extract failed: %s err=%v\n", filename, err)
			_ = s.db.MarkDocumentFailed(doc.ID, string(internal.StatusExtractFailed), err.Error())
			summary.Failed++
			continue
		}

		// Debug copy first, structural gate second: even a payload that
		// fails the gate stays on disk for inspection.
		if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
			return summary, err
		}
		if err := s.db.SetDocumentJSONRef(doc.ID, jsonPath); err != nil {
			return summary, err
		}

		if err := ValidatePayload(payload); err != nil {
			fmt.Printf("  extract failed: %s err=%v\n", filename, err)
			_ = s.db.MarkDocumentFailed(doc.ID, string(internal.StatusExtractFailed), err.Error())
			summary.Failed++
			continue
		}

		if err := s.db.UpdateDocumentStatus(doc.ID, string(internal.StatusExtracted)); err != nil {
			return summary, err
		}
		fmt.Printf("  saved: %s\n", filepath.Base(jsonPath))
		summary.Processed++
	}

	return summary, nil
}

// ensureDocument covers --skip-download runs where PDFs exist on disk but
// were never recorded by the fetch stage.
func (s *Service) ensureDocument(filename, pdfPath string, blob []byte) (internal.DocumentRow, error) {
	existing, err := s.db.GetDocumentByFilename(filename)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	hashBytes := sha256.Sum256(blob)
	return s.db.UpsertDocument("", filename, hex.EncodeToString(hashBytes[:]), pdfPath, string(internal.StatusFetched))
}
