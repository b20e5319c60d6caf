package connectors

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"

	"voucherpipe/internal"
	"voucherpipe/internal/storage"
)

// Metadata keys recorded by the fetch stage. MetaLastDriveFolder lets later
// runs reuse the folder when no --drive-folder flag is given.
const (
	MetaLastDriveFolder = "last_drive_folder"
	MetaLastFetchAt     = "last_fetch_at"
)

type FetchService struct {
	db        *storage.DB
	pdfDir    string
	connector DriveConnector
}

type FetchResult struct {
	Listed     int
	Downloaded int
	Skipped    int
}

func NewFetchService(db *storage.DB, pdfDir string, connector DriveConnector) *FetchService {
	return &FetchService{db: db, pdfDir: pdfDir, connector: connector}
}

// FetchAndStore downloads every PDF in the folder into the local pdf
// directory and records one document row per file. Files Drive reports as
// PDFs but that do not open as one are stored and marked skipped so they
// never reach the extraction quota.
func (s *FetchService) FetchAndStore(ctx context.Context, folderID string) (FetchResult, error) {
	files, err := s.connector.ListFolder(ctx, folderID)
	if err != nil {
		return FetchResult{}, err
	}

	if err := os.MkdirAll(s.pdfDir, 0o755); err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Listed: len(files)}
	for _, file := range files {
		blob, err := s.connector.Download(ctx, file.ID)
		if err != nil {
			return result, fmt.Errorf("download %s: %w", file.Name, err)
		}

		hashBytes := sha256.Sum256(blob)
		hash := hex.EncodeToString(hashBytes[:])

		pdfPath := filepath.Join(s.pdfDir, file.Name)
		if err := os.WriteFile(pdfPath, blob, 0o644); err != nil {
			return result, err
		}

		status := internal.StatusFetched
		if !isReadablePDF(blob) {
			status = internal.StatusSkipped
		}

		if _, err := s.db.UpsertDocument(file.ID, file.Name, hash, pdfPath, string(status)); err != nil {
			return result, err
		}

		if status == internal.StatusSkipped {
			result.Skipped++
			continue
		}
		result.Downloaded++
	}

	if err := s.db.SetMetadata(MetaLastDriveFolder, folderID); err != nil {
		return result, err
	}
	if err := s.db.SetMetadata(MetaLastFetchAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, err
	}

	return result, nil
}

// RememberedFolderID returns the folder id of the last successful fetch,
// or "" when no fetch has run against this database yet.
func (s *FetchService) RememberedFolderID() (string, error) {
	value, err := s.db.GetMetadata(MetaLastDriveFolder)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

// ListLocalPDFs returns the PDFs already on disk, name-sorted, for
// --skip-download runs.
func (s *FetchService) ListLocalPDFs() ([]string, error) {
	entries, err := os.ReadDir(s.pdfDir)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(s.pdfDir, entry.Name()))
	}
	return out, nil
}

func isReadablePDF(blob []byte) bool {
	reader, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return false
	}
	return reader.NumPage() >= 1
}
