package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mailflow-app/mailflow/internal/config"
	"github.com/mailflow-app/mailflow/internal/ledger"
	"github.com/mailflow-app/mailflow/internal/logger"
	"github.com/mailflow-app/mailflow/internal/triage"
	"github.com/mailflow-app/mailflow/internal/web"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile     string
	lexiconFile string
	logLevel    string
)

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lexiconFile != "" {
		cfg.Lexicon.Path = lexiconFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

func loadClassifier(cfg *config.Config) (*triage.Classifier, error) {
	if cfg.Lexicon.Path == "" {
		return triage.New(nil), nil
	}
	lex, err := triage.LoadLexicon(cfg.Lexicon.Path)
	if err != nil {
		return nil, err
	}
	return triage.New(lex), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailflow",
		Short: "MailFlow - Triage incoming email as productive or unproductive",
		Long: `MailFlow classifies Portuguese-language business email as Produtivo
(needs follow-up) or Improdutivo (courtesy, marketing, spam) and suggests a
first reply.

It runs as a local web UI and JSON API, as a one-shot classifier for text or
.eml files, or as an IMAP inbox monitor that can sort mail and answer
productive messages.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mailflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&lexiconFile, "lexicon", "", "lexicon YAML file replacing the built-in phrase lists")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Add commands
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(lexiconCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long:  "Create a configuration file with every default filled in, ready to edit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(force bool) error {
	configPath := resolveConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.Save(configPath, config.Default()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✅ Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Run 'mailflow serve' and open the web UI")
	fmt.Println("  2. Run 'mailflow classify \"texto do e-mail\"' to try the classifier")
	fmt.Println("  3. Fill in the inbox section and run 'mailflow monitor --dry-run'")
	return nil
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web interface and JSON API",
		Long: `Start a local web server with the classification page and the
POST /processar_email JSON endpoint.

The server binds to 127.0.0.1 by default; set server.host to expose it.
JSON clients such as curl need no CSRF token. Browser sessions carrying the
CSRF cookie must send the X-CSRF-Token header. Behind a reverse proxy, set
server.trust_proxy so rate limiting sees the forwarded client address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config, 8000)")

	return cmd
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	log := newLogger(cfg)

	classifier, err := loadClassifier(cfg)
	if err != nil {
		return err
	}

	server, err := web.NewServer(cfg, classifier, version, log)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	return server.Start()
}

func lexiconCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lexicon",
		Short: "Print the effective lexicon as YAML",
		Long:  "Show the phrase lists the classifier matches against, after --lexicon or lexicon.path is applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			classifier, err := loadClassifier(cfg)
			if err != nil {
				return err
			}
			lex := classifier.Lexicon()
			data, err := yaml.Marshal(lex)
			if err != nil {
				return fmt.Errorf("failed to serialize lexicon: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", lex.Source(), data)
			return nil
		},
	}
}

func ledgerCmd() *cobra.Command {
	var limit int
	var pruneDays int
	var messageID string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show handled-message ledger statistics",
		Long:  "Display the messages recent monitor runs handled and which of them were answered.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(limit, pruneDays, messageID)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent entries to show")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete entries older than N days")
	cmd.Flags().StringVar(&messageID, "message-id", "", "Show the ledger entry for one Message-ID")

	return cmd
}

func runLedger(limit, pruneDays int, messageID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.NewStore(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if messageID != "" {
		return showLedgerEntry(ctx, os.Stdout, store, messageID)
	}
	if pruneDays > 0 {
		n, err := store.Prune(ctx, time.Now().AddDate(0, 0, -pruneDays))
		if err != nil {
			return err
		}
		fmt.Printf("🧹 Pruned %d entries older than %d days\n\n", n, pruneDays)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("📊 Handled: %d   Replied: %d\n\n", stats.Handled, stats.Replied)

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No handled messages yet.")
		return nil
	}

	fmt.Printf("%-20s %-8s %s\n", "HANDLED", "REPLIED", "MESSAGE")
	for _, e := range entries {
		replied := "-"
		if e.Replied() {
			replied = "yes"
		}
		fmt.Printf("%-20s %-8s %s\n", e.HandledAt.Local().Format("2006-01-02 15:04"), replied, truncateString(e.Key, 60))
	}
	return nil
}

func showLedgerEntry(ctx context.Context, out io.Writer, store *ledger.Store, key string) error {
	e, err := store.Get(ctx, key)
	if errors.Is(err, ledger.ErrNotFound) {
		fmt.Fprintf(out, "%s has not been handled.\n", key)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Message: %s\n", e.Key)
	fmt.Fprintf(out, "Mailbox: %s (UID %d)\n", e.Mailbox, e.UID)
	fmt.Fprintf(out, "Run:     %s\n", e.RunID)
	fmt.Fprintf(out, "Handled: %s\n", e.HandledAt.Local().Format("2006-01-02 15:04"))
	if e.Replied() {
		fmt.Fprintf(out, "Reply:   %s\n", e.ReplyID)
	} else {
		fmt.Fprintln(out, "Reply:   -")
	}
	return nil
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
