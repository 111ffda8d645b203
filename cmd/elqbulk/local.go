package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/elqbulk/internal/export"
	"github.com/osvaldoandrade/elqbulk/internal/ingest"
	"github.com/osvaldoandrade/elqbulk/internal/ratelimit"
	"github.com/osvaldoandrade/elqbulk/internal/services"
	"github.com/osvaldoandrade/elqbulk/internal/submit"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

// submissionFlags are shared by the local commands and `job create`.
type submissionFlags struct {
	siteID      string
	formName    string
	encoding    string
	delimiter   string
	concurrency int
	timeoutSec  int
	delayMs     int
	staggerMs   int
	perMinute   int
}

func (f *submissionFlags) register(cmd *cobra.Command) {
	defaults := domain.DefaultSubmissionOptions()
	cmd.Flags().StringVar(&f.siteID, "site-id", "", "Eloqua site id")
	cmd.Flags().StringVar(&f.formName, "form-name", "", "Eloqua form name")
	cmd.Flags().StringVar(&f.encoding, "encoding", "utf-8", "Input encoding: utf-8|windows-1251|windows-1252|iso-8859-1")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", ",", "Field delimiter: , ; | or tab")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", defaults.MaxConcurrentRequests, "Rows submitted in parallel per batch (1-20)")
	cmd.Flags().IntVar(&f.timeoutSec, "timeout", defaults.RequestTimeoutSeconds, "Per-request timeout in seconds (1-60)")
	cmd.Flags().IntVar(&f.delayMs, "delay-ms", defaults.DelayBetweenBatchesMs, "Pause between batches in milliseconds (0-5000)")
	cmd.Flags().IntVar(&f.staggerMs, "stagger-ms", 0, "Spacing between request starts inside a batch in milliseconds")
	cmd.Flags().IntVar(&f.perMinute, "max-per-minute", 0, "Cap on form posts per minute per site (0 disables)")
}

func (f *submissionFlags) target(g *globals) domain.SubmissionTarget {
	return domain.SubmissionTarget{
		SiteID:   strings.TrimSpace(firstNonEmpty(f.siteID, g.siteID)),
		FormName: strings.TrimSpace(firstNonEmpty(f.formName, g.formName)),
	}
}

func (f *submissionFlags) options() domain.SubmissionOptions {
	return domain.SubmissionOptions{
		RequestTimeoutSeconds: f.timeoutSec,
		DelayBetweenBatchesMs: f.delayMs,
		StaggerWithinBatchMs:  f.staggerMs,
		MaxConcurrentRequests: f.concurrency,
		MaxRequestsPerMinute:  f.perMinute,
	}
}

func (f *submissionFlags) parse(path string) (*ingest.Result, error) {
	delim := f.delimiter
	if delim == "tab" || delim == `\t` {
		delim = "\t"
	}
	d, ok := ingest.ValidDelimiter(delim)
	if !ok {
		return nil, fmt.Errorf("unsupported delimiter %q", f.delimiter)
	}
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return ingest.ParseReader(r, ingest.Options{Delimiter: d, Encoding: f.encoding})
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

func newLocalEngine(endpointTemplate, userAgent string, verbose bool) services.BulkSubmissionService {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	submitter := submit.New(&http.Client{}, submit.Config{EndpointTemplate: endpointTemplate, UserAgent: userAgent})
	return services.NewBulkSubmissionService(logger, submitter, ratelimit.NewLocalLimiter())
}

func submitCmd(g *globals, ui *ui) *cobra.Command {
	var (
		flags            submissionFlags
		output           string
		outFile          string
		endpointTemplate string
		userAgent        string
		verbose          bool
		quiet            bool
	)
	cmd := &cobra.Command{
		Use:     "submit [file.csv]",
		Short:   "Submit every CSV row to an Eloqua form from this machine",
		Example: "elqbulk submit leads.csv --site-id 123 --form-name Webinar --output csv --out results.csv",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(output)
			if err != nil {
				return err
			}
			parsed, err := flags.parse(firstArg(args))
			if err != nil {
				return err
			}
			if parsed.NeutralizedCells > 0 {
				fmt.Fprintf(os.Stderr, "%s %d cell(s) neutralized\n", ui.warn("[WARN]"), parsed.NeutralizedCells)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			total := len(parsed.Rows)
			var progress services.ProgressFunc
			if !quiet {
				bar := progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Submitting"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetWidth(24),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				progress = func(processed, _ int, _ string) { _ = bar.Set(processed) }
			}

			engine := newLocalEngine(endpointTemplate, userAgent, verbose)
			out, runErr := engine.Run(ctx, parsed.Rows, flags.target(g), flags.options(), progress)
			if out == nil {
				return runErr
			}
			if err := writeOutput(outFile, format, out); err != nil {
				return err
			}
			if out.Summary != nil {
				fmt.Fprintf(os.Stderr, "%s %d/%d rows submitted (%.1f%% success)\n",
					ui.ok("[OK]"), out.Summary.SuccessfulRequests, out.Summary.TotalRows, out.Summary.SuccessRate)
			}
			if errors.Is(runErr, services.ErrJobCanceled) {
				fmt.Fprintln(os.Stderr, ui.warn("[WARN]"), "Interrupted; partial results written")
			}
			return runErr
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json|csv")
	cmd.Flags().StringVar(&outFile, "out", "", "Write results to this file instead of stdout")
	cmd.Flags().StringVar(&endpointTemplate, "endpoint-template", submit.DefaultEndpointTemplate, "Form endpoint; {siteId} is replaced")
	cmd.Flags().StringVar(&userAgent, "user-agent", submit.DefaultUserAgent, "User-Agent header")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}

func validateCmd(g *globals, ui *ui) *cobra.Command {
	var (
		flags            submissionFlags
		outFile          string
		endpointTemplate string
	)
	cmd := &cobra.Command{
		Use:     "validate [file.csv]",
		Short:   "Parse the CSV and preview the requests without sending them",
		Example: "elqbulk validate leads.csv --site-id 123 --form-name Webinar",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := flags.parse(firstArg(args))
			if err != nil {
				return err
			}
			engine := newLocalEngine(endpointTemplate, submit.DefaultUserAgent, false)
			report, err := engine.Validate(parsed.Rows, flags.target(g))
			if err != nil {
				return err
			}
			w, closeFn, err := openOutput(outFile)
			if err != nil {
				return err
			}
			if err := export.WriteJSON(w, report); err != nil {
				_ = closeFn()
				return err
			}
			if err := closeFn(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %d row(s) ready, headers: %s\n",
				ui.ok("[OK]"), report.ValidRows, strings.Join(parsed.Headers, ", "))
			if parsed.SkippedRecords > 0 {
				fmt.Fprintf(os.Stderr, "%s %d blank record(s) skipped\n", ui.info("[INFO]"), parsed.SkippedRecords)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&outFile, "out", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&endpointTemplate, "endpoint-template", submit.DefaultEndpointTemplate, "Form endpoint; {siteId} is replaced")
	return cmd
}

func writeOutput(path string, format export.Format, out *domain.JobOutput) error {
	w, closeFn, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := export.Write(w, format, out); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
