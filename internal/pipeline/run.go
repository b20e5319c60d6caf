package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voucherpipe/internal/config"
	"voucherpipe/internal/connectors"
	driveconnector "voucherpipe/internal/connectors/drive"
	"voucherpipe/internal/extract"
	"voucherpipe/internal/storage"
)

type RunOptions struct {
	FolderInput  string
	OutputPath   string
	SkipDownload bool
	SkipExtract  bool
}

// Run executes the full pipeline: fetch PDFs, extract payloads, normalize,
// write the workbook. Stages are strictly sequential, one document at a
// time; skip flags replay from whatever the previous run left on disk.
func Run(ctx context.Context, db *storage.DB, cfg config.Config, opts RunOptions) error {
	if !opts.SkipExtract {
		if err := cfg.Require("GENAI_API_KEY", cfg.GenAIAPIKey); err != nil {
			return err
		}
	}

	var fetch *connectors.FetchService
	if opts.SkipDownload {
		fmt.Println("[1/4] skipping download, using existing PDFs")
		fetch = connectors.NewFetchService(db, cfg.PDFDir, nil)
	} else {
		conn, err := driveconnector.NewConnector(ctx, cfg)
		if err != nil {
			return err
		}
		fetch = connectors.NewFetchService(db, cfg.PDFDir, conn)

		folderInput := strings.TrimSpace(opts.FolderInput)
		if folderInput == "" {
			folderInput, err = fetch.RememberedFolderID()
			if err != nil {
				return err
			}
		}
		if folderInput == "" {
			return errors.New("no drive folder given and no previous fetch to reuse")
		}

		folderID := driveconnector.ExtractFolderID(folderInput)
		fmt.Printf("[1/4] downloading PDFs from drive folder %s\n", folderID)
		result, err := fetch.FetchAndStore(ctx, folderID)
		if err != nil {
			return err
		}
		fmt.Printf("drive fetch done listed=%d downloaded=%d skipped=%d\n", result.Listed, result.Downloaded, result.Skipped)
	}

	pdfPaths, err := fetch.ListLocalPDFs()
	if err != nil {
		return err
	}
	if len(pdfPaths) == 0 {
		return errors.New("no PDF files found")
	}

	if opts.SkipExtract {
		fmt.Println("[2/4] skipping extraction, using existing JSON payloads")
	} else {
		fmt.Printf("[2/4] extracting %d PDF(s)\n", len(pdfPaths))
		svc := extract.NewService(db, cfg)
		summary, err := svc.ProcessPDFs(ctx, pdfPaths)
		switch {
		case summary.StoppedEarly:
			fmt.Printf("quota exhausted after %d document(s); resume later with --skip-extract\n", summary.Processed)
		case err != nil:
			return err
		default:
			fmt.Printf("extraction done processed=%d skipped=%d failed=%d\n", summary.Processed, summary.Skipped, summary.Failed)
		}
	}

	fmt.Println("[3/4] aggregating JSON payloads")
	agg, err := NewAggregationService(db, cfg.JSONDir).Aggregate()
	if err != nil {
		return err
	}
	if agg.Documents == 0 {
		return errors.New("no extracted JSON payloads to aggregate")
	}
	for _, failure := range agg.Failures {
		fmt.Printf("  unusable payload: %s (%s)\n", failure.SourceName, failure.Reason)
	}

	if err := WriteWorkbook(agg.Rows, opts.OutputPath); err != nil {
		return err
	}
	fmt.Printf("[4/4] saved %s (%d data rows, %d skipped document(s))\n", opts.OutputPath, len(agg.Rows), len(agg.Failures))
	return nil
}
