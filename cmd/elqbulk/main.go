package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

// globals holds the values resolved from flags, environment and profile.
type globals struct {
	baseURL     string
	token       string
	profileName string

	// Profile defaults for --site-id and --form-name.
	siteID   string
	formName string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func newClient(baseURL, token string) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) request(method, path string, body any) (int, []byte, error) {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	ui := newUI()
	if err := newRootCmd(ui).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func newRootCmd(ui *ui) *cobra.Command {
	g := &globals{
		baseURL:     getenv("ELQBULK_BASE_URL", "http://localhost:8080"),
		token:       getenv("ELQBULK_TOKEN", ""),
		profileName: getenv("ELQBULK_PROFILE", ""),
	}

	root := &cobra.Command{
		Use:   "elqbulk",
		Short: "elqbulk CLI",
		Long:  "elqbulk CLI for bulk Eloqua form submissions, locally or through the job API.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&g.baseURL, "base-url", g.baseURL, "Base URL for the elqbulk API")
	root.PersistentFlags().StringVar(&g.token, "token", g.token, "Bearer token for the elqbulk API")
	root.PersistentFlags().StringVar(&g.profileName, "profile", g.profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(g.profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") && strings.TrimSpace(os.Getenv("ELQBULK_BASE_URL")) == "" && prof.BaseURL != "" {
			g.baseURL = prof.BaseURL
		}
		if !flags.Changed("token") && strings.TrimSpace(g.token) == "" {
			if tok, err := loadToken(active); err == nil {
				g.token = tok
			}
		}
		if g.profileName == "" {
			g.profileName = active
		}
		g.siteID = prof.SiteID
		g.formName = prof.FormName
		return nil
	}

	root.AddCommand(submitCmd(g, ui))
	root.AddCommand(validateCmd(g, ui))
	root.AddCommand(jobCmd(g, ui))
	root.AddCommand(initCmd(g, ui))
	root.AddCommand(authCmd(g, ui))
	return root
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(ui *ui) string {
	title := ui.title("elqbulk")
	return fmt.Sprintf(`%s: bulk Eloqua form submissions

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  elqbulk validate leads.csv --site-id 123 --form-name Webinar
  elqbulk submit leads.csv --site-id 123 --form-name Webinar --concurrency 5 --output csv
  elqbulk init
  elqbulk auth set
  elqbulk job create leads.csv --site-id 123 --form-name Webinar --webhook https://hooks.example.com/elq
  elqbulk job results <id> --format csv

`, title, configPath())
}
