package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"voucherpipe/internal/config"
	"voucherpipe/internal/connectors"
	driveconnector "voucherpipe/internal/connectors/drive"
	"voucherpipe/internal/extract"
	"voucherpipe/internal/pipeline"
	"voucherpipe/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		folder := fs.String("drive-folder", "", "drive folder id or URL (defaults to the last fetched folder)")
		output := fs.String("output", "combined_output.xlsx", "output xlsx path")
		skipDownload := fs.Bool("skip-download", false, "reuse already-downloaded PDFs")
		skipExtract := fs.Bool("skip-extract", false, "reuse already-extracted JSON payloads")
		_ = fs.Parse(os.Args[2:])
		must(pipeline.Run(ctx, db, cfg, pipeline.RunOptions{
			FolderInput:  *folder,
			OutputPath:   *output,
			SkipDownload: *skipDownload,
			SkipExtract:  *skipExtract,
		}))
	case "drive:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		folder := fs.String("folder", "", "drive folder id or URL (defaults to the last fetched folder)")
		_ = fs.Parse(os.Args[2:])
		conn, err := driveconnector.NewConnector(ctx, cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.PDFDir, conn)
		folderInput := strings.TrimSpace(*folder)
		if folderInput == "" {
			folderInput, err = fetch.RememberedFolderID()
			must(err)
		}
		if folderInput == "" {
			must(fmt.Errorf("--folder is required (no previous fetch to reuse)"))
		}
		result, err := fetch.FetchAndStore(ctx, driveconnector.ExtractFolderID(folderInput))
		must(err)
		fmt.Printf("drive fetch done listed=%d downloaded=%d skipped=%d\n", result.Listed, result.Downloaded, result.Skipped)
	case "extract:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 0, "max pending documents to extract (0 = all)")
		_ = fs.Parse(os.Args[2:])
		svc := extract.NewService(db, cfg)
		summary, err := svc.ProcessPending(ctx, *limit)
		if summary.StoppedEarly {
			fmt.Printf("quota exhausted after %d document(s); rerun later to resume\n", summary.Processed)
		} else {
			must(err)
			fmt.Printf("extraction done processed=%d skipped=%d failed=%d\n", summary.Processed, summary.Skipped, summary.Failed)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		agg, err := pipeline.NewAggregationService(db, cfg.JSONDir).Aggregate()
		must(err)
		if agg.Documents == 0 {
			must(fmt.Errorf("no extracted JSON payloads to aggregate"))
		}
		must(pipeline.WriteWorkbook(agg.Rows, *out))
		fmt.Printf("exported %d rows to %s (%d skipped)\n", len(agg.Rows), *out, len(agg.Failures))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: voucherpipe <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--drive-folder=<id-or-url>] [--output=combined_output.xlsx] [--skip-download] [--skip-extract]")
	fmt.Println("  drive:fetch [--folder=<id-or-url>]")
	fmt.Println("  extract:process [--limit=N]")
	fmt.Println("  export:xlsx --out=./out/result.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
