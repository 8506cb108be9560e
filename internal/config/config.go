package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	// Oracle (structured extraction service).
	OracleAPIBaseURL string
	OracleAPIKey     string
	OracleModelT1    string
	OracleModelT2    string
	OracleTimeoutMs  int
	OracleRateRPS    int

	// Reconciliation knobs. Money tolerance is absolute currency units.
	DefaultVatRate   float64
	MoneyTolerance   float64
	QtyTolerance     float64
	MaxRetries       int
	FuzzyThreshold   float64
	LockTTLMinutes   int
	BlacklistIDs     []string
	BlacklistEmails  []string
	ExcludedDomains  []string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		OracleAPIBaseURL: getEnv("ORACLE_API_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OracleAPIKey:     getEnv("ORACLE_API_KEY", ""),
		OracleModelT1:    getEnv("ORACLE_MODEL_TRIAL1", "gemini-2.5-flash"),
		OracleModelT2:    getEnv("ORACLE_MODEL_TRIAL2", "gemini-2.5-pro"),
		OracleTimeoutMs:  getEnvInt("ORACLE_TIMEOUT_MS", 120000),
		OracleRateRPS:    getEnvInt("ORACLE_RATE_LIMIT_RPS", 2),

		DefaultVatRate: getEnvFloat("DEFAULT_VAT_RATE", 18.0),
		MoneyTolerance: getEnvFloat("VALIDATION_TOLERANCE", 5.0),
		QtyTolerance:   getEnvFloat("QTY_TOLERANCE", 0.1),
		MaxRetries:     getEnvInt("MAX_RETRIES", 1),
		FuzzyThreshold: getEnvFloat("FUZZY_MATCH_THRESHOLD", 85.0),
		LockTTLMinutes: getEnvInt("LOCK_TTL_MINUTES", 60),

		BlacklistIDs:    getEnvList("BLACKLIST_IDS", ""),
		BlacklistEmails: getEnvList("BLACKLIST_EMAILS", ""),
		ExcludedDomains: getEnvList("EXCLUDED_EMAIL_DOMAINS", defaultExcludedDomains),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),
	}

	return cfg, nil
}

// Free-mail and ISP domains never identify a supplier; matching by these
// would point shared infrastructure at whichever supplier was seen first.
const defaultExcludedDomains = "gmail.com,yahoo.com,hotmail.com,outlook.com,live.com,aol.com,icloud.com,mail.com,protonmail.com,zoho.com,yandex.com,walla.co.il,walla.com,012.net.il,netvision.net.il,bezeqint.net,zahav.net.il,013.net,smile.net.il,barak.net.il"

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
