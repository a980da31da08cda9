package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/karmi/pn-transcriptions/internal/batch"
	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
	"github.com/karmi/pn-transcriptions/internal/export"
	"github.com/karmi/pn-transcriptions/internal/ledger"
	"github.com/karmi/pn-transcriptions/internal/objstore"
	"github.com/karmi/pn-transcriptions/internal/objstore/r2"
	"github.com/karmi/pn-transcriptions/internal/source"
	"github.com/karmi/pn-transcriptions/internal/transcription/assemblyai"
)

// Exit codes: 0 clean, 1 at least one item failed, 2 fatal before or during setup.
const (
	exitOK         = 0
	exitItemErrors = 1
	exitFatal      = 2
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func usage() {
	fmt.Printf(`Usage:
  pn-transcriptions run <input> [flags]   transcribe a batch of audio recordings
  pn-transcriptions export [flags]        export the run ledger to an XLSX catalog

<input> is a single audio file, a directory, a CSV file with filename/url
columns, or a remote://bucket/prefix object-storage locator.

Run "pn-transcriptions <command> -h" to see the flags for a command.
`)
}

func main() {
	// Pick up ASSEMBLYAI_* and R2_* variables from a local .env if present.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFatal)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	case "export":
		os.Exit(exportCommand(os.Args[2:]))
	case "help", "-h", "--help":
		usage()
	default:
		printError("Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(exitFatal)
	}
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		output       = fs.String("output", "transcripts", "directory for transcripts and run state")
		workers      = fs.Int("workers", 0, "concurrent transcriptions (default TRANSCRIBE_WORKERS or 5)")
		offset       = fs.Int("offset", 0, "skip the first N items of the input")
		limit        = fs.Int("limit", 0, "process at most N items, 0 means no limit")
		logFile      = fs.String("logfile", "", "log file path, '-' for stdout (default <output>/transcriptions.log)")
		timeout      = fs.Duration("timeout", 0, "per-item timeout (default TRANSCRIBE_ITEM_TIMEOUT or 1h)")
		pollInterval = fs.Duration("poll-interval", 0, "status poll interval (default TRANSCRIBE_POLL_INTERVAL or 2s)")
		configPath   = fs.String("config", "", "optional YAML config file")
	)

	// Accept the input argument either before or after the flags.
	var input string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		input, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}
	if input == "" {
		input = fs.Arg(0)
	}
	if input == "" {
		printError("Error: run requires an <input> argument\n\n")
		fs.Usage()
		return exitFatal
	}

	var workersSet bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			workersSet = true
		}
	})
	if err := validateRunFlags(workersSet, *workers, *offset, *limit, *timeout, *pollInterval); err != nil {
		printError("Error: %v\n\n", err)
		fs.Usage()
		return exitFatal
	}

	// Environment first, then the optional YAML overlay, then flags.
	cfg := common.LoadConfig()
	if err := cfg.ApplyFile(*configPath); err != nil {
		printError("Error: %v\n", err)
		return exitFatal
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if *timeout > 0 {
		cfg.Batch.ItemTimeout = *timeout
	}
	if *pollInterval > 0 {
		cfg.Batch.PollInterval = *pollInterval
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		return exitFatal
	}

	// The output directory holds the ledger, the transcript bundles and the
	// default log file, so it has to exist before anything else.
	if err := os.MkdirAll(*output, 0o755); err != nil {
		printError("Error: cannot create output directory %s: %v\n", *output, err)
		return exitFatal
	}

	logW, closeLog, err := openLogTarget(*logFile, *output)
	if err != nil {
		printError("Error: %v\n", err)
		return exitFatal
	}
	defer closeLog()

	logger := slog.New(slog.NewJSONHandler(logW, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, err := source.Detect(input)
	if err != nil {
		logger.Error("invalid input", "input", input, "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}

	// Wire the enumerator and ledger for the detected input kind. CSV inputs
	// track state in the CSV itself; everything else uses the JSON ledger in
	// the output directory.
	var (
		enum  source.Enumerator
		led   ledger.Ledger
		store objstore.Store
	)
	switch kind {
	case source.KindFile, source.KindDir:
		enum = source.NewLocal(input, kind, logger)
		led, err = ledger.NewDirLedger(*output, logger)
	case source.KindCSV:
		enum = source.NewCSV(input, logger)
		led, err = ledger.NewCSVLedger(input, *output, logger)
	case source.KindRemote:
		enum, store, err = remoteSource(ctx, cfg, input, logger)
		if err == nil {
			led, err = ledger.NewDirLedger(*output, logger)
		}
	}
	if err != nil {
		logger.Error("failed to set up input", "input", input, "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}

	transcriber := assemblyai.NewClient(assemblyai.Config{
		APIKey:  cfg.Transcription.APIKey,
		BaseURL: cfg.Transcription.BaseURL,
		Timeout: cfg.Transcription.Timeout,
		OnRateLimit: func(wait time.Duration) {
			fmt.Printf("Rate limited by provider, retrying in %s\n", wait.Round(time.Second))
		},
	}, logger)

	pool := batch.NewPool(transcriber, store, led, logger,
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithPollInterval(cfg.Batch.PollInterval),
		batch.WithItemTimeout(cfg.Batch.ItemTimeout),
		batch.WithPresignTTL(cfg.Storage.PresignTTL),
		batch.WithOnItemDone(func(id string, elapsed time.Duration, err error) {
			if err != nil {
				fmt.Printf("error %s: %v\n", id, err)
				return
			}
			fmt.Printf("done %s in %s\n", id, humanizeDuration(elapsed))
		}),
	)
	controller := batch.NewController(enum, led, pool, logger,
		batch.WithOnDispatch(func(pending, skipped int) {
			switch {
			case pending == 0 && skipped > 0:
				fmt.Printf("All selected items already have completed transcriptions.\n")
			case pending == 0:
				fmt.Printf("No items matched the requested offset/limit.\n")
			case skipped > 0:
				fmt.Printf("Processing %d item(s) (skipping %d) from %s\n", pending, skipped, input)
			default:
				fmt.Printf("Processing %d item(s) from %s\n", pending, input)
			}
		}),
	)

	logger.Info("starting transcription run",
		"input", input,
		"kind", string(kind),
		"output", *output,
		"workers", cfg.Batch.Workers)

	summary, err := controller.Run(ctx, entity.RunWindow{Offset: *offset, Limit: *limit})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printError("Interrupted\n")
			return exitItemErrors
		}
		logger.Error("run aborted", "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}

	banner := "Transcription run complete!"
	if ctx.Err() != nil {
		banner = "Transcription run interrupted."
	}
	fmt.Printf("%s\n", banner)
	fmt.Printf("- Completed: %d\n", summary.Completed)
	fmt.Printf("- Skipped: %d\n", summary.Skipped)
	fmt.Printf("- Failed: %d\n", summary.Failed)
	fmt.Printf("- Output: %s\n", *output)
	fmt.Printf("- Duration: %s\n", humanizeDuration(summary.Elapsed))

	if summary.Failed > 0 {
		return exitItemErrors
	}
	return exitOK
}

func exportCommand(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var (
		output  = fs.String("output", "transcripts", "directory holding the run state")
		input   = fs.String("input", "", "CSV work list whose tracking columns hold the run state")
		xlsxOut = fs.String("xlsx", "", "XLSX output path (default <output>/transcripts.xlsx)")
	)
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	var (
		led ledger.Ledger
		err error
	)
	if *input != "" {
		led, err = ledger.NewCSVLedger(*input, *output, logger)
	} else {
		led, err = ledger.NewDirLedger(*output, logger)
	}
	if err != nil {
		logger.Error("failed to open ledger", "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}

	out := *xlsxOut
	if out == "" {
		out = filepath.Join(*output, "transcripts.xlsx")
	}

	xlsxBytes, err := export.NewService(led, logger).ExportXLSX(ctx)
	if err != nil {
		logger.Error("failed to export transcripts", "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}
	if err := os.WriteFile(out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		printError("Error: %v\n", err)
		return exitFatal
	}

	fmt.Printf("Export complete!\n")
	fmt.Printf("- Output: %s\n", out)
	return exitOK
}

// validateRunFlags rejects flag values the run cannot honor. workersSet
// distinguishes an explicit --workers from the unset default.
func validateRunFlags(workersSet bool, workers, offset, limit int, timeout, pollInterval time.Duration) error {
	if workersSet && workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", workers)
	}
	if offset < 0 {
		return fmt.Errorf("--offset must not be negative, got %d", offset)
	}
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", limit)
	}
	if timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %s", timeout)
	}
	if pollInterval < 0 {
		return fmt.Errorf("--poll-interval must not be negative, got %s", pollInterval)
	}
	return nil
}

// remoteSource wires the R2 client and enumerator for a remote:// input. The
// locator's bucket segment wins over the configured default bucket.
func remoteSource(ctx context.Context, cfg *common.Config, input string, logger *slog.Logger) (source.Enumerator, objstore.Store, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, nil, err
	}
	bucket, prefix, err := source.ParseRemote(input)
	if err != nil {
		return nil, nil, err
	}
	if bucket == "" {
		bucket = cfg.Storage.Bucket
	}
	if bucket == "" {
		return nil, nil, common.ConfigErrorf("remote input %s names no bucket and R2_BUCKET is unset", input)
	}
	client, err := r2.NewClient(ctx, r2.Config{
		AccountID:       cfg.Storage.AccountID,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return source.NewRemote(client, bucket, prefix, logger), client, nil
}

// openLogTarget resolves the --logfile flag. An empty value defaults to
// transcriptions.log inside the output directory; "-" or "--" selects stdout.
func openLogTarget(logFile, outputDir string) (io.Writer, func(), error) {
	if logFile == "-" || logFile == "--" {
		return os.Stdout, func() {}, nil
	}
	if logFile == "" {
		logFile = filepath.Join(outputDir, "transcriptions.log")
	}
	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("cannot create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", logFile, err)
	}
	return f, func() { _ = f.Close() }, nil
}

// humanizeDuration renders an elapsed duration the way a person would say it.
func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	end := time.Now()
	return strings.TrimSpace(humanize.RelTime(end.Add(-d), end, "", ""))
}
