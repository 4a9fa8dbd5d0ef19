package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HubSpot
	HubSpotBaseURL    string
	HubSpotToken      string
	ModulesTableID    string
	CoursesTableID    string
	PathwaysTableID   string
	ProgressProperty  string
	EnableCRMProgress bool

	// Content sync
	ContentDir       string
	StripLeadingH1   bool
	DeleteMissing    bool
	ArchiveDir       string
	ArchiveStrategy  string
	RowDelay         time.Duration
	QuizPassingScore int

	// Auth
	JWTSecret         string
	CognitoRegion     string
	CognitoUserPoolID string
	CognitoClientID   string
	CognitoIssuer     string
	AllowedOrigins    []string
	ProgressDBDSN     string
	APIAddr           string

	// SFTP (export upload)
	SFTPHost                  string
	SFTPPort                  int
	SFTPUser                  string
	SFTPPass                  string
	SFTPDir                   string
	SFTPKnownHostsFile        string
	SFTPInsecureIgnoreHostKey bool
}

func Load() Config {
	region := firstEnv("COGNITO_REGION", "AWS_REGION")
	if region == "" {
		region = "us-west-2"
	}
	poolID := os.Getenv("COGNITO_USER_POOL_ID")

	return Config{
		// HubSpot
		HubSpotBaseURL:    getenv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		HubSpotToken:      firstEnv("HUBSPOT_PROJECT_ACCESS_TOKEN", "HUBSPOT_API_TOKEN", "HUBSPOT_PRIVATE_APP_TOKEN"),
		ModulesTableID:    os.Getenv("HUBDB_MODULES_TABLE_ID"),
		CoursesTableID:    os.Getenv("HUBDB_COURSES_TABLE_ID"),
		PathwaysTableID:   os.Getenv("HUBDB_PATHWAYS_TABLE_ID"),
		ProgressProperty:  getenv("PROGRESS_PROPERTY", "hhl_progress_state"),
		EnableCRMProgress: getenvBool("ENABLE_CRM_PROGRESS", false),

		// Content sync
		ContentDir:       getenv("CONTENT_DIR", "content"),
		StripLeadingH1:   getenvBool("SYNC_STRIP_LEADING_H1", true),
		DeleteMissing:    getenvBool("SYNC_DELETE_MISSING", true),
		ArchiveDir:       getenv("SYNC_ARCHIVE_DIR", "content/archive"),
		ArchiveStrategy:  strings.ToLower(getenv("SYNC_ARCHIVE_STRATEGY", "tag")),
		RowDelay:         getenvDuration("SYNC_ROW_DELAY", 1500*time.Millisecond),
		QuizPassingScore: getenvInt("QUIZ_PASSING_SCORE", 70),

		// Auth
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CognitoRegion:     region,
		CognitoUserPoolID: poolID,
		CognitoClientID:   os.Getenv("COGNITO_CLIENT_ID"),
		CognitoIssuer:     getenv("COGNITO_ISSUER", defaultIssuer(region, poolID)),
		AllowedOrigins:    splitList(getenv("ALLOWED_ORIGINS", "https://hedgehog.cloud,https://www.hedgehog.cloud")),
		ProgressDBDSN:     getenv("PROGRESS_DB_DSN", "file:hhl-progress.db"),
		APIAddr:           getenv("API_ADDR", ":8080"),

		// SFTP
		SFTPHost:                  os.Getenv("SFTP_HOST"),
		SFTPPort:                  getenvInt("SFTP_PORT", 22),
		SFTPUser:                  os.Getenv("SFTP_USER"),
		SFTPPass:                  os.Getenv("SFTP_PASS"),
		SFTPDir:                   getenv("SFTP_DIR", "/inbound"),
		SFTPKnownHostsFile:        os.Getenv("SFTP_KNOWN_HOSTS"),
		SFTPInsecureIgnoreHostKey: getenvBool("SFTP_INSECURE_IGNORE_HOSTKEY", true),
	}
}

// JWKSURL is the Cognito user pool key set endpoint.
func (c Config) JWKSURL() string {
	if c.CognitoUserPoolID == "" {
		return ""
	}
	return "https://cognito-idp." + c.CognitoRegion + ".amazonaws.com/" + c.CognitoUserPoolID + "/.well-known/jwks.json"
}

func defaultIssuer(region, poolID string) string {
	if poolID == "" {
		return ""
	}
	return "https://cognito-idp." + region + ".amazonaws.com/" + poolID
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("1.5s") or plain milliseconds ("1500").
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
