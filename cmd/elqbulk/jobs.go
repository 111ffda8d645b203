package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/elqbulk/internal/export"
	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

const jobsPath = "/v1/elqbulk/jobs"

var errTokenRequired = errors.New("token is required (run `elqbulk auth set` or pass --token)")

func newSpinner(suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " " + suffix
	return spin
}

// call runs one API request behind a spinner and fails on non-2xx replies.
func (c *client) call(method, path string, body any, suffix string) ([]byte, error) {
	spin := newSpinner(suffix)
	spin.Start()
	status, resp, err := c.request(method, path, body)
	spin.Stop()
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
	}
	return resp, nil
}

func (g *globals) client() (*client, error) {
	if strings.TrimSpace(g.token) == "" && !isLocalURL(g.baseURL) {
		return nil, errTokenRequired
	}
	return newClient(g.baseURL, g.token), nil
}

func jobCmd(g *globals, ui *ui) *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Job operations on an elqbulk server",
	}
	job.AddCommand(jobCreateCmd(g, ui), jobGetCmd(g), jobListCmd(g, ui), jobResultsCmd(g, ui), jobCancelCmd(g, ui))
	return job
}

func jobCreateCmd(g *globals, ui *ui) *cobra.Command {
	var (
		flags          submissionFlags
		operation      string
		webhook        string
		idempotencyKey string
		wait           bool
	)
	cmd := &cobra.Command{
		Use:     "create [file.csv]",
		Short:   "Upload a CSV and start a submission job",
		Example: "elqbulk job create leads.csv --site-id 123 --form-name Webinar --wait",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			r, closeFn, err := openInput(firstArg(args))
			if err != nil {
				return err
			}
			raw, err := io.ReadAll(r)
			closeFn()
			if err != nil {
				return err
			}
			target := flags.target(g)
			body := domain.CreateJobRequest{
				Operation:      domain.Operation(operation),
				SiteID:         target.SiteID,
				FormName:       target.FormName,
				CSV:            string(raw),
				Encoding:       flags.encoding,
				Delimiter:      flags.delimiter,
				Options:        flags.options(),
				Webhook:        webhook,
				IdempotencyKey: idempotencyKey,
			}
			if body.Delimiter == "tab" {
				body.Delimiter = "\t"
			}
			resp, err := c.call(http.MethodPost, jobsPath, body, "Creating job...")
			if err != nil {
				return err
			}
			var created domain.Job
			if err := json.Unmarshal(resp, &created); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Job created: %s (%d rows)\n", ui.ok("[OK]"), created.ID, created.TotalRows)
			if !wait {
				return nil
			}
			done, err := waitForJob(c, created.ID)
			if err != nil {
				return err
			}
			printJobLine(ui, done)
			if done.Status != domain.StatusCompleted {
				return fmt.Errorf("job %s finished as %s", done.ID, done.Status)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&operation, "operation", string(domain.OpSubmit), "Operation: submit|validate")
	cmd.Flags().StringVar(&webhook, "webhook", "", "Completion webhook URL")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the job to finish")
	return cmd
}

func waitForJob(c *client, id string) (domain.Job, error) {
	spin := newSpinner("Waiting for job...")
	spin.Start()
	defer spin.Stop()
	for {
		status, resp, err := c.request(http.MethodGet, jobsPath+"/"+url.PathEscape(id), nil)
		if err != nil {
			return domain.Job{}, err
		}
		if status >= 300 {
			return domain.Job{}, fmt.Errorf("error (%d): %s", status, strings.TrimSpace(string(resp)))
		}
		var job domain.Job
		if err := json.Unmarshal(resp, &job); err != nil {
			return domain.Job{}, err
		}
		if job.Status.Finished() {
			return job, nil
		}
		if job.Progress != "" {
			spin.Suffix = " " + job.Progress
		}
		time.Sleep(time.Second)
	}
}

func jobGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.call(http.MethodGet, jobsPath+"/"+url.PathEscape(args[0]), nil, "Fetching job...")
			if err != nil {
				return err
			}
			fmt.Println(string(resp))
			return nil
		},
	}
}

func jobListCmd(g *globals, ui *ui) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.call(http.MethodGet, jobsPath+"?limit="+strconv.Itoa(limit), nil, "Listing jobs...")
			if err != nil {
				return err
			}
			var out struct {
				Jobs []domain.Job `json:"jobs"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			if len(out.Jobs) == 0 {
				fmt.Println(ui.dim("no jobs"))
			}
			for _, j := range out.Jobs {
				printJobLine(ui, j)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")
	return cmd
}

func jobResultsCmd(g *globals, ui *ui) *cobra.Command {
	var (
		format  string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Download the row results of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.call(http.MethodGet, jobsPath+"/"+url.PathEscape(args[0])+"/results?format="+string(f), nil, "Fetching results...")
			if err != nil {
				return err
			}
			w, closeFn, err := openOutput(outFile)
			if err != nil {
				return err
			}
			if _, err := w.Write(resp); err != nil {
				_ = closeFn()
				return err
			}
			if err := closeFn(); err != nil {
				return err
			}
			if outFile != "" {
				fmt.Fprintf(os.Stderr, "%s Results written to %s\n", ui.ok("[OK]"), outFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Format: json|csv")
	cmd.Flags().StringVar(&outFile, "out", "", "Write results to this file instead of stdout")
	return cmd
}

func jobCancelCmd(g *globals, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			resp, err := c.call(http.MethodPost, jobsPath+"/"+url.PathEscape(args[0])+"/cancel", nil, "Canceling job...")
			if err != nil {
				return err
			}
			var job domain.Job
			if err := json.Unmarshal(resp, &job); err != nil || job.ID == "" {
				fmt.Println(string(resp))
				return nil
			}
			printJobLine(ui, job)
			return nil
		},
	}
}

func printJobLine(ui *ui, j domain.Job) {
	status := string(j.Status)
	switch j.Status {
	case domain.StatusCompleted:
		status = ui.ok(status)
	case domain.StatusFailed:
		status = ui.err(status)
	case domain.StatusCanceled:
		status = ui.warn(status)
	default:
		status = ui.info(status)
	}
	line := fmt.Sprintf("%s %s %s/%s %d/%d", j.ID, status, j.Target.SiteID, j.Target.FormName, j.ProcessedRows, j.TotalRows)
	if j.Summary != nil {
		line += fmt.Sprintf(" %s", ui.dim(fmt.Sprintf("(%.1f%% success)", j.Summary.SuccessRate)))
	}
	if j.Error != "" {
		line += " " + ui.err(j.Error)
	}
	fmt.Println(line)
}

func isLocalURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1"
}
