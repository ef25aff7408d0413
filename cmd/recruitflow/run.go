package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/recruitflow/recruitflow/internal/dispatch"
	"github.com/recruitflow/recruitflow/internal/engine"
	"github.com/recruitflow/recruitflow/internal/faq"
	"github.com/recruitflow/recruitflow/internal/flow"
	"github.com/recruitflow/recruitflow/internal/followup"
	"github.com/recruitflow/recruitflow/internal/genai"
	"github.com/recruitflow/recruitflow/internal/intent"
	"github.com/recruitflow/recruitflow/internal/lockfile"
	"github.com/recruitflow/recruitflow/internal/messaging"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/scheduler"
	"github.com/recruitflow/recruitflow/internal/sheets"
	"github.com/recruitflow/recruitflow/internal/store"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the outreach bot",
	Long: "Connects the messaging account, starts the inbound pipeline, the reminder " +
		"sweep, the CRM event flusher and the maintenance cron jobs, and runs until " +
		"interrupted.",
	RunE: runBot,
}

var (
	runQROutput string
	runNumeric  bool
)

func init() {
	runCommand.Flags().StringVar(&runQROutput, "qr-output", "", "path to write the login QR code")
	runCommand.Flags().BoolVar(&runNumeric, "numeric-code", false, "use a numeric login code instead of a QR code")
	rootCmd.AddCommand(runCommand)
}

func runBot(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if missing := cfg.ContentLinks.Validate(); len(missing) > 0 {
		return fmt.Errorf("missing content asset links: %v", missing)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Error("lock release failed", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	waOpts := []messaging.Option{messaging.WithSessionDSN(cfg.SessionDSN)}
	if runQROutput != "" {
		waOpts = append(waOpts, messaging.WithQRCodeOutput(runQROutput))
	}
	if runNumeric {
		waOpts = append(waOpts, messaging.WithNumericCode())
	}
	client, err := messaging.NewClient(waOpts...)
	if err != nil {
		return fmt.Errorf("connect messaging account: %w", err)
	}
	svc := messaging.NewClientService(client)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start messaging service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Error("messaging stop failed", "error", err)
		}
	}()

	ai := buildAI(cfg)
	corpus := faq.LoadCorpus(cfg.CorpusFiles...)
	var answerer faq.Answerer
	if ai != nil {
		answerer = ai
	}
	faqSvc := faq.NewService(corpus, answerer)

	followups := followup.NewScheduler(st, st, st,
		followup.WithWindow(cfg.WindowStartHour, cfg.WindowEndHour),
		followup.WithTimezone(cfg.Timezone),
		followup.WithExcludedPeers(cfg.Excluded),
	)

	var rewriter dispatch.Rewriter
	if ai != nil {
		rewriter = ai
	}
	dispatcher := dispatch.NewDispatcher(svc, rewriter, st, st, followups,
		dispatch.WithAccountKey(cfg.AccountKey),
		dispatch.WithTimezone(cfg.Timezone),
	)
	followups.SetSender(dispatcher)

	var classifierAI intent.AIClassifier
	if ai != nil {
		classifierAI = ai
	}
	eng := engine.NewEngine(svc, st, intent.NewClassifier(classifierAI), faqSvc, dispatcher,
		dispatcher.Tracker(), followups,
		engine.WithAccountKey(cfg.AccountKey),
		engine.WithContentLinks(cfg.ContentLinks),
		engine.WithLeadGroups(cfg.LeadGroups),
		engine.WithDebounce(cfg.Debounce),
		engine.WithGateReminderDelay(cfg.GateReminderDelay),
		engine.WithVoiceTimeout(cfg.VoiceTimeout),
		engine.WithTimezone(cfg.Timezone),
	)

	cron := scheduler.NewScheduler(cfg.Timezone)
	defer cron.Stop()

	if cfg.sheetsConfigured() {
		sheetClient, err := sheets.NewClient(ctx,
			sheets.WithCredentialsFile(cfg.CredentialsFile),
			sheets.WithSpreadsheetID(cfg.SpreadsheetID),
		)
		if err != nil {
			return fmt.Errorf("connect spreadsheet backend: %w", err)
		}
		writer := sheets.NewWriter(sheetClient, cfg.Timezone)
		journal := sheets.NewJournal(sheetClient, cfg.Timezone, cfg.RetentionMonths)
		applier := sheets.NewApplier(writer, journal)
		flusher := store.NewEventFlusher(st, applier, 0)
		go flusher.Run(ctx)

		err = cron.RegisterMaintenance(cfg.ResyncCron, cfg.PruneCron,
			func(ctx context.Context) error {
				return resyncToday(ctx, st, writer, cfg)
			},
			journal.Prune,
		)
		if err != nil {
			return fmt.Errorf("register maintenance jobs: %w", err)
		}
	} else {
		slog.Warn("spreadsheet backend not configured, CRM side-channel disabled")
	}

	go followups.Run(ctx)

	slog.Info("RecruitFlow running", "account", cfg.AccountKey, "leadGroups", len(cfg.LeadGroups))
	eng.Run(ctx)
	slog.Info("RecruitFlow exited")
	return nil
}

func openStore(cfg Config) (store.Store, error) {
	postgres, opts := cfg.storeOptions()
	if postgres {
		s, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	}
	s, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return s, nil
}

func buildAI(cfg Config) *genai.Client {
	if cfg.OpenAIKey == "" {
		slog.Warn("no OpenAI key configured, AI assistance disabled")
		return nil
	}
	opts := []genai.Option{genai.WithAPIKey(cfg.OpenAIKey)}
	if cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAIModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Error("AI client unavailable, continuing without", "error", err)
		return nil
	}
	return client
}

// resyncRows rebuilds CRM rows for every stored peer.
func resyncRows(st store.Store, cfg Config) ([]models.CRMRow, error) {
	ids, err := st.ListPeerIDs()
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	rows := make([]models.CRMRow, 0, len(ids))
	for _, id := range ids {
		state, err := st.GetPeerState(id)
		if err != nil {
			return nil, fmt.Errorf("load state for peer %d: %w", id, err)
		}
		autoReply := "ON"
		if !state.AutoReply {
			autoReply = "OFF"
		}
		rows = append(rows, models.CRMRow{
			ChatLink:   sheets.ChatLink("", id),
			Status:     flow.StatusForStep(state.FlowStep),
			AutoReply:  autoReply,
			LastStep:   string(state.FlowStep),
			UpdatedAt:  time.Now().In(cfg.Timezone).Format(time.RFC3339),
			PeerID:     id,
			AccountKey: cfg.AccountKey,
		})
	}
	return rows, nil
}

func resyncToday(ctx context.Context, st store.Store, writer *sheets.Writer, cfg Config) error {
	rows, err := resyncRows(st, cfg)
	if err != nil {
		return err
	}
	_, err = writer.Resync(ctx, rows, time.Now().In(cfg.Timezone))
	return err
}
