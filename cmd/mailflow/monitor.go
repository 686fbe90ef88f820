package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mailflow-app/mailflow/internal/config"
	"github.com/mailflow-app/mailflow/internal/email"
	"github.com/mailflow-app/mailflow/internal/inbox"
	"github.com/mailflow-app/mailflow/internal/ledger"
	"github.com/mailflow-app/mailflow/internal/template"
	"github.com/mailflow-app/mailflow/internal/triage"
)

type monitorOptions struct {
	days   int
	watch  bool
	reply  bool
	dryRun bool
}

func monitorCmd() *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Triage the configured IMAP inbox",
		Long: `Connect to your inbox via IMAP and classify recent messages.

This command will:
- Fetch messages received in the last N days
- Classify each one as Produtivo or Improdutivo
- Move unproductive mail to inbox.unproductive_folder when inbox.auto_sort is set
- Send the suggested reply to productive mail with --reply (requires reply.enabled)

Messages handled by an earlier run are skipped. Requires inbox configuration
in config.yaml with IMAP settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts)
		},
	}

	cmd.Flags().IntVar(&opts.days, "days", 0, "Number of days to look back (default from config, 7)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep watching for new messages with IMAP IDLE")
	cmd.Flags().BoolVar(&opts.reply, "reply", false, "Send suggested replies to productive messages")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Classify only; do not move, reply or record anything")

	return cmd
}

func printInboxHelp() {
	fmt.Println("📧 Inbox monitoring is not configured.")
	fmt.Println()
	fmt.Println("To enable inbox monitoring, add the following to your config.yaml:")
	fmt.Println()
	fmt.Println("inbox:")
	fmt.Println("  enabled: true")
	fmt.Println("  provider: gmail")
	fmt.Println("  email: your-email@gmail.com")
	fmt.Println("  password: your-app-password  # Use an App Password, or set MAILFLOW_IMAP_PASSWORD")
	fmt.Println("  auto_sort: true              # Move unproductive mail to 'Improdutivo'")
}

func newReplier(cfg *config.Config) (*email.Replier, error) {
	if err := cfg.ValidateReply(); err != nil {
		return nil, err
	}
	sender, err := email.NewSender(cfg.Reply)
	if err != nil {
		return nil, err
	}
	engine, err := template.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}
	return email.NewReplier(sender, engine, cfg.Reply), nil
}

func runMonitor(opts monitorOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateInbox(); err != nil {
		if errors.Is(err, config.ErrInboxDisabled) {
			printInboxHelp()
		}
		return err
	}
	log := newLogger(cfg)

	classifier, err := loadClassifier(cfg)
	if err != nil {
		return err
	}

	days := opts.days
	if days == 0 {
		days = cfg.Inbox.Days
	}

	processor := &inbox.Processor{
		Classifier: classifier,
		RunID:      uuid.NewString(),
		DryRun:     opts.dryRun,
		Log:        log,
	}

	if !opts.dryRun {
		store, err := ledger.NewStore(cfg.Ledger.Path)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer store.Close()
		processor.Ledger = store
	}

	if opts.reply && !opts.dryRun {
		replier, err := newReplier(cfg)
		if err != nil {
			return err
		}
		processor.Replier = replier
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	monitor := inbox.NewMonitor(cfg.Inbox, log)
	if err := monitor.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to inbox: %w", err)
	}
	defer monitor.Disconnect()

	autoSort := cfg.Inbox.AutoSort && !opts.dryRun
	if autoSort {
		if err := monitor.EnsureFolder(cfg.Inbox.UnproductiveFolder); err != nil {
			return err
		}
	}

	fmt.Printf("📬 Triaging %s (last %d days, run %s)...\n\n", cfg.Inbox.Folder, days, processor.RunID)

	emails, err := monitor.FetchRecent(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to fetch emails: %w", err)
	}

	var outcomes []inbox.Outcome
	for _, e := range emails {
		out, err := processor.Process(ctx, e)
		if err != nil {
			log.Error().Err(err).Str("message_id", e.Key()).Msg("failed to process message")
			continue
		}
		outcomes = append(outcomes, out)
		printOutcome(out)
	}

	if autoSort {
		if err := monitor.Move(inbox.UnproductiveUIDs(outcomes), cfg.Inbox.UnproductiveFolder); err != nil {
			log.Error().Err(err).Msg("failed to sort unproductive messages")
		}
	}

	s := inbox.Summarize(outcomes)
	fmt.Println()
	fmt.Printf("📊 %d messages: %d produtivos, %d improdutivos, %d already handled, %d replied\n",
		s.Total, s.Productive, s.Unproductive, s.Duplicates, s.Replied)

	if !opts.watch {
		return nil
	}

	fmt.Println()
	fmt.Println("👀 Watching for new messages (Ctrl+C to stop)...")
	err = monitor.Watch(ctx, func(e inbox.Email) {
		out, err := processor.Process(ctx, e)
		if err != nil {
			log.Error().Err(err).Str("message_id", e.Key()).Msg("failed to process message")
			return
		}
		printOutcome(out)
		if autoSort {
			if err := monitor.Move(inbox.UnproductiveUIDs([]inbox.Outcome{out}), cfg.Inbox.UnproductiveFolder); err != nil {
				log.Error().Err(err).Msg("failed to sort message")
			}
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printOutcome(out inbox.Outcome) {
	if out.Duplicate {
		fmt.Printf("  ⏭  %s (already handled)\n", truncateString(out.Email.Subject, 60))
		return
	}
	icon := "📭"
	if out.Category() == triage.Productive {
		icon = "📌"
	}
	fmt.Printf("  %s %-11s %s <%s>\n", icon, out.Category().Label(), truncateString(out.Email.Subject, 60), out.Email.From)
	if out.ReplyID != "" {
		fmt.Printf("     ↳ replied (%s)\n", out.ReplyID)
	}
}
