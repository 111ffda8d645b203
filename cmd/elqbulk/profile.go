package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const keyringService = "elqbulk"

type profile struct {
	BaseURL  string `yaml:"baseUrl"`
	SiteID   string `yaml:"siteId,omitempty"`
	FormName string `yaml:"formName,omitempty"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func initCmd(g *globals, ui *ui) *cobra.Command {
	var (
		baseURL  string
		siteID   string
		formName string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(g.profileName, cfg)
			prof := cfg.Profiles[active]

			baseURL = firstNonEmpty(baseURL, prof.BaseURL, "http://localhost:8080")
			siteID = firstNonEmpty(siteID, prof.SiteID)
			formName = firstNonEmpty(formName, prof.FormName)
			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				siteID = prompt(reader, "Default site id (optional)", siteID)
				formName = prompt(reader, "Default form name (optional)", formName)
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.SiteID = strings.TrimSpace(siteID)
			prof.FormName = strings.TrimSpace(formName)
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || cmd.Flags().Changed("profile") {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for the elqbulk API")
	cmd.Flags().StringVar(&siteID, "site-id", "", "Default Eloqua site id")
	cmd.Flags().StringVar(&formName, "form-name", "", "Default Eloqua form name")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(g *globals, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage the API token stored in the OS keychain",
	}

	var (
		token    string
		noPrompt bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store a token for the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.TrimSpace(token)
			if value == "" && !noPrompt {
				p, err := promptSecret("Token")
				if err != nil {
					return err
				}
				value = p
			}
			if value == "" {
				return errors.New("token is required")
			}
			if err := keyring.Set(keyringService, g.profileName, value); err != nil {
				return fmt.Errorf("store token in keychain: %w", err)
			}
			fmt.Printf("%s Token stored for '%s'\n", ui.ok("[OK]"), g.profileName)
			return nil
		},
	}
	set.Flags().StringVar(&token, "value", "", "Token value (prompted when omitted)")
	set.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active profile and its token (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			prof := cfg.Profiles[g.profileName]
			stored, err := loadToken(g.profileName)
			if err != nil && !errors.Is(err, keyring.ErrNotFound) {
				return err
			}
			fmt.Printf("%s Profile: %s\n", ui.title("elqbulk"), g.profileName)
			fmt.Printf("%s Base URL:  %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s Site id:   %s\n", ui.info("•"), emptyOr(prof.SiteID, "<unset>"))
			fmt.Printf("%s Form name: %s\n", ui.info("•"), emptyOr(prof.FormName, "<unset>"))
			fmt.Printf("%s Token:     %s\n", ui.info("•"), maskToken(stored))
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := keyring.Delete(keyringService, g.profileName)
			if err != nil && !errors.Is(err, keyring.ErrNotFound) {
				return err
			}
			fmt.Printf("%s Token cleared for '%s'\n", ui.ok("[OK]"), g.profileName)
			return nil
		},
	}

	auth.AddCommand(set, show, clear)
	return auth
}

func loadToken(profileName string) (string, error) {
	return keyring.Get(keyringService, profileName)
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("ELQBULK_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".elqbulk", "config.yaml")
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		fmt.Println()
		if err != nil && strings.TrimSpace(line) == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
