package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/recruitflow/recruitflow/internal/messaging"
	"github.com/recruitflow/recruitflow/internal/models"
	"github.com/recruitflow/recruitflow/internal/store"
	"github.com/recruitflow/recruitflow/internal/util"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for RecruitFlow state data.
	DefaultStateDir = "/var/lib/recruitflow"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "recruitflow.db"
	// DefaultSessionFileName is the default messaging session filename.
	DefaultSessionFileName = "session.db"
	// DefaultTimezone anchors the sending window and CRM timestamps.
	DefaultTimezone = "Europe/Kyiv"
)

// Config holds environment configuration.
type Config struct {
	StateDir    string
	DatabaseURL string
	SessionDSN  string

	OpenAIKey   string
	OpenAIModel string

	CredentialsFile string
	SpreadsheetID   string
	AccountKey      string

	Timezone   *time.Location
	LeadGroups []models.PeerID
	Excluded   []models.PeerID

	ContentLinks messaging.ContentLinks
	CorpusFiles  []string

	Debounce          time.Duration
	GateReminderDelay time.Duration
	VoiceTimeout      time.Duration

	WindowStartHour int
	WindowEndHour   int

	RetentionMonths int
	ResyncCron      string
	PruneCron       string
}

// loadConfig reads configuration from environment variables.
func loadConfig() (Config, error) {
	cfg := Config{
		StateDir:    util.ParseStringEnv("RECRUITFLOW_STATE_DIR", DefaultStateDir),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SessionDSN:  os.Getenv("SESSION_DB"),

		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),

		CredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
		AccountKey:      util.ParseStringEnv("ACCOUNT_KEY", "main"),

		ContentLinks: messaging.ContentLinks{
			models.ContentVoice:    os.Getenv("CONTENT_VOICE_LINK"),
			models.ContentPhoto1:   os.Getenv("CONTENT_PHOTO_1_LINK"),
			models.ContentPhoto2:   os.Getenv("CONTENT_PHOTO_2_LINK"),
			models.ContentTestTask: os.Getenv("CONTENT_TEST_TASK_LINK"),
			models.ContentForm:     os.Getenv("CONTENT_FORM_LINK"),
		},
		CorpusFiles: splitList(os.Getenv("FAQ_CORPUS_FILES")),

		Debounce:          secondsEnv("REPLY_DEBOUNCE_SEC", 3),
		GateReminderDelay: minutesEnv("GATE_REMINDER_MIN", 15),
		VoiceTimeout:      minutesEnv("VOICE_TIMEOUT_MIN", 60),

		WindowStartHour: util.ParseIntEnv("FOLLOWUP_WINDOW_START", 10),
		WindowEndHour:   util.ParseIntEnv("FOLLOWUP_WINDOW_END", 21),

		RetentionMonths: util.ParseIntEnv("JOURNAL_RETENTION_MONTHS", 3),
		ResyncCron:      os.Getenv("RESYNC_CRON"),
		PruneCron:       os.Getenv("PRUNE_CRON"),
	}

	if cfg.SessionDSN == "" {
		cfg.SessionDSN = filepath.Join(cfg.StateDir, DefaultSessionFileName)
	}

	tzName := util.ParseStringEnv("TIMEZONE", DefaultTimezone)
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone %q: %w", tzName, err)
	}
	cfg.Timezone = tz

	cfg.LeadGroups, err = peerList(os.Getenv("LEAD_GROUPS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse LEAD_GROUPS: %w", err)
	}
	cfg.Excluded, err = peerList(os.Getenv("EXCLUDED_PEERS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse EXCLUDED_PEERS: %w", err)
	}

	return cfg, nil
}

// storeOptions maps the configured DSN onto a backend: a Postgres URL
// selects the shared backend, anything else is a SQLite file path under
// the state directory.
func (c Config) storeOptions() (postgres bool, opts []store.Option) {
	if strings.Contains(c.DatabaseURL, "postgres://") || strings.Contains(c.DatabaseURL, "host=") {
		return true, []store.Option{store.WithPostgresDSN(c.DatabaseURL)}
	}
	dsn := c.DatabaseURL
	if dsn == "" {
		dsn = filepath.Join(c.StateDir, DefaultDBFileName)
	}
	return false, []store.Option{store.WithDSN(dsn)}
}

func (c Config) sheetsConfigured() bool {
	return c.CredentialsFile != "" && c.SpreadsheetID != ""
}

func secondsEnv(key string, fallback int) time.Duration {
	return time.Duration(util.ParseIntEnv(key, fallback)) * time.Second
}

func minutesEnv(key string, fallback int) time.Duration {
	return time.Duration(util.ParseIntEnv(key, fallback)) * time.Minute
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func peerList(v string) ([]models.PeerID, error) {
	var out []models.PeerID
	for _, part := range splitList(v) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid peer id %q", part)
		}
		out = append(out, models.PeerID(id))
	}
	return out, nil
}
