package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	Mail           MailConfig
	Browser        BrowserConfig
	Auth           AuthConfig
	Watcher        WatcherConfig
	Reconciler     ReconcilerConfig
	SiteMonitor    SiteMonitorConfig
}

type MailConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string // account password or app password
	TLS            bool
	ConnectTimeout time.Duration
	// RelevanceToken is the deployment-identifying string a message must
	// mention (in sender, subject, or body) to be treated as ours.
	RelevanceToken string
}

type BrowserConfig struct {
	TargetURL      string
	Headless       bool
	BrowserBin     string
	NavTimeout     time.Duration
	ElementTimeout time.Duration
}

type AuthConfig struct {
	AccountEmail  string
	AdminEmail    string
	AdminPassword string
	PollInterval  time.Duration
	EmailWait     time.Duration
	Selectors     AuthSelectors
}

// AuthSelectors locates the target site's login controls. The site is not
// ours, so every selector is overridable from the environment.
type AuthSelectors struct {
	EmailInput    string
	RequestSubmit string
	AdminButton   string
	AdminEmail    string
	AdminPassword string
	AdminSubmit   string
}

type WatcherConfig struct {
	ContainerSelector string
	MarkerClass       string
	AttachTimeout     time.Duration
	BufferSize        int
}

type ReconcilerConfig struct {
	// EmailDomain is appended to parsed usernames to form the record key.
	EmailDomain string
	DedupMax    int
	DedupWindow time.Duration
}

type SiteMonitorConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func Load() *Config {
	return &Config{
		Port:           getEnvOrDefault("QW_PORT", "5080"),
		AllowedOrigins: getAllowedOrigins(),
		Mail: MailConfig{
			Host:           getEnvOrDefault("QW_MAIL_HOST", "imap.gmail.com"),
			Port:           getEnvIntOrDefault("QW_MAIL_PORT", 993),
			Username:       getEnvOrDefault("QW_MAIL_USER", ""),
			Password:       getEnvOrDefault("QW_MAIL_PASSWORD", ""),
			TLS:            getEnvBoolOrDefault("QW_MAIL_TLS", true),
			ConnectTimeout: getEnvDurationOrDefault("QW_MAIL_CONNECT_TIMEOUT", 30*time.Second),
			RelevanceToken: getEnvOrDefault("QW_MAIL_RELEVANCE_TOKEN", "smartclean"),
		},
		Browser: BrowserConfig{
			TargetURL:      getEnvOrDefault("QW_TARGET_URL", "https://smartclean-1333e.web.app"),
			Headless:       getEnvBoolOrDefault("QW_BROWSER_HEADLESS", true),
			BrowserBin:     getEnvOrDefault("QW_BROWSER_BIN", ""),
			NavTimeout:     getEnvDurationOrDefault("QW_BROWSER_NAV_TIMEOUT", 30*time.Second),
			ElementTimeout: getEnvDurationOrDefault("QW_BROWSER_ELEMENT_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			AccountEmail:  getEnvOrDefault("QW_ACCOUNT_EMAIL", ""),
			AdminEmail:    getEnvOrDefault("QW_ADMIN_EMAIL", ""),
			AdminPassword: getEnvOrDefault("QW_ADMIN_PASSWORD", ""),
			PollInterval:  getEnvDurationOrDefault("QW_EMAIL_POLL_INTERVAL", 2*time.Second),
			EmailWait:     getEnvDurationOrDefault("QW_EMAIL_WAIT_TIMEOUT", 60*time.Second),
			Selectors:     defaultAuthSelectors(),
		},
		Watcher: WatcherConfig{
			ContainerSelector: getEnvOrDefault("QW_LOG_CONTAINER_SELECTOR", `div[class*="bg-black rounded-2xl p-4 min-h-[300px] font-mono text-sm"]`),
			MarkerClass:       getEnvOrDefault("QW_LOG_MARKER_CLASS", "log-line"),
			AttachTimeout:     getEnvDurationOrDefault("QW_WATCHER_ATTACH_TIMEOUT", 30*time.Second),
			BufferSize:        getEnvIntOrDefault("QW_WATCHER_BUFFER", 256),
		},
		Reconciler: ReconcilerConfig{
			EmailDomain: getEnvOrDefault("QW_EMAIL_DOMAIN", "smartclean.se"),
			DedupMax:    getEnvIntOrDefault("QW_DEDUP_MAX", 4096),
			DedupWindow: getEnvDurationOrDefault("QW_DEDUP_WINDOW", 10*time.Minute),
		},
		SiteMonitor: SiteMonitorConfig{
			Interval: getEnvDurationOrDefault("QW_SITE_CHECK_INTERVAL", 30*time.Second),
			Timeout:  getEnvDurationOrDefault("QW_SITE_CHECK_TIMEOUT", 10*time.Second),
		},
	}
}

func defaultAuthSelectors() AuthSelectors {
	return AuthSelectors{
		EmailInput:    getEnvOrDefault("QW_SEL_EMAIL_INPUT", "input#email"),
		RequestSubmit: getEnvOrDefault("QW_SEL_REQUEST_SUBMIT", `button[class*="glass-button"]`),
		AdminButton:   getEnvOrDefault("QW_SEL_ADMIN_BUTTON", `button[class*="inline-flex items-center justify-center"]`),
		AdminEmail:    getEnvOrDefault("QW_SEL_ADMIN_EMAIL", "input#email"),
		AdminPassword: getEnvOrDefault("QW_SEL_ADMIN_PASSWORD", "input#password"),
		AdminSubmit:   getEnvOrDefault("QW_SEL_ADMIN_SUBMIT", `button[type="submit"]`),
	}
}

func getAllowedOrigins() []string {
	originsEnv := getEnvOrDefault("QW_ALLOWED_ORIGINS", "localhost,127.0.0.1")
	if originsEnv == "*" {
		return []string{"*"}
	}

	origins := strings.Split(originsEnv, ",")
	var cleanOrigins []string
	for _, origin := range origins {
		cleanOrigins = append(cleanOrigins, strings.TrimSpace(origin))
	}
	return cleanOrigins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lowered := strings.ToLower(value)
		if lowered == "true" || lowered == "1" || lowered == "yes" {
			return true
		}
		if lowered == "false" || lowered == "0" || lowered == "no" {
			return false
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// Address returns the IMAP dial address.
func (m MailConfig) Address() string {
	return m.Host + ":" + strconv.Itoa(m.Port)
}
