package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
	"github.com/maltedev/metro-catalog-scraper/internal/scraper"
)

type Config struct {
	Server   ServerConfig
	Metrics  MetricsConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MetricsConfig struct {
	Addr string
}

type BrowserConfig struct {
	Engine               string
	LoadStrategy         string
	WindowSize           string
	Install              bool
	Headless             bool
	DisableCache         bool
	NoSandbox            bool
	DisableDevShmUsage   bool
	DisableBlinkFeatures string
	UserAgent            string
	ImplicitWait         time.Duration
	NavigationTimeout    time.Duration
}

type ScraperConfig struct {
	CategoryURL      string
	RunAttempts      int
	ItemAttempts     int
	RetryDelay       time.Duration
	PaginationSettle time.Duration
	CityTypedSettle  time.Duration
	SuggestionSettle time.Duration
	ConfirmSettle    time.Duration
	ItemDelayMin     time.Duration
	ItemDelayMax     time.Duration
	FailOnItemError  bool
	Cities           []string
}

type OutputConfig struct {
	Dir string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
}

type QueueConfig struct {
	MaxSize int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after merging a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	defaults := browser.DefaultConfig()
	scraperDefaults := scraper.DefaultConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Browser: BrowserConfig{
			Engine:               getEnv("WEBDRIVER", string(defaults.Engine)),
			LoadStrategy:         getEnv("LOAD_STRATEGY", string(defaults.LoadStrategy)),
			WindowSize:           getEnv("WINDOW_SIZE", fmt.Sprintf("%d,%d", defaults.WindowWidth, defaults.WindowHeight)),
			Install:              getEnvBool("BROWSER_INSTALL", defaults.Install),
			Headless:             getEnvBool("HEADLESS", defaults.Headless),
			DisableCache:         getEnvBool("DISABLE_CACHE", defaults.DisableCache),
			NoSandbox:            getEnvBool("NO_SANDBOX", defaults.NoSandbox),
			DisableDevShmUsage:   getEnvBool("DISABLE_DEV_SHM_USAGE", defaults.DisableDevShmUsage),
			DisableBlinkFeatures: getEnv("DISABLE_BLINK_FEATURES", defaults.DisableBlinkFeatures),
			UserAgent:            getEnv("USER_AGENT", defaults.UserAgent),
			ImplicitWait:         getEnvDuration("BROWSER_IMPLICIT_WAIT", defaults.ImplicitWait),
			NavigationTimeout:    getEnvDuration("BROWSER_NAVIGATION_TIMEOUT", defaults.NavigationTimeout),
		},
		Scraper: ScraperConfig{
			CategoryURL:      getEnv("SCRAPER_CATEGORY_URL", scraperDefaults.CategoryURL),
			RunAttempts:      getEnvInt("SCRAPER_RUN_ATTEMPTS", scraperDefaults.RunAttempts),
			ItemAttempts:     getEnvInt("SCRAPER_ITEM_ATTEMPTS", scraperDefaults.ItemAttempts),
			RetryDelay:       getEnvDuration("SCRAPER_RETRY_DELAY", scraperDefaults.RetryDelay),
			PaginationSettle: getEnvDuration("SCRAPER_PAGINATION_SETTLE", scraperDefaults.PaginationSettle),
			CityTypedSettle:  getEnvDuration("SCRAPER_CITY_TYPED_SETTLE", scraperDefaults.Locality.CityTyped),
			SuggestionSettle: getEnvDuration("SCRAPER_SUGGESTION_SETTLE", scraperDefaults.Locality.SuggestionChosen),
			ConfirmSettle:    getEnvDuration("SCRAPER_CONFIRM_SETTLE", scraperDefaults.Locality.SelectionConfirmed),
			ItemDelayMin:     getEnvDuration("SCRAPER_ITEM_DELAY_MIN", 0),
			ItemDelayMax:     getEnvDuration("SCRAPER_ITEM_DELAY_MAX", 0),
			FailOnItemError:  getEnvBool("SCRAPER_FAIL_ON_ITEM_ERROR", scraperDefaults.FailOnItemError),
			Cities:           getEnvList("SCRAPER_CITIES", []string{"Москва", "Санкт-Петербург"}),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", "."),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "metro_catalog"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Stream:   getEnv("REDIS_STREAM", "stream:catalog_products"),
		},
		Queue: QueueConfig{
			MaxSize: getEnvInt("QUEUE_MAX_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv exports the variables of path that are not already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if _, err := c.Browser.ToBrowser(); err != nil {
		return err
	}

	u, err := url.Parse(c.Scraper.CategoryURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SCRAPER_CATEGORY_URL must be an absolute url, got %q", c.Scraper.CategoryURL)
	}

	if c.Scraper.ItemDelayMin > c.Scraper.ItemDelayMax {
		return fmt.Errorf("SCRAPER_ITEM_DELAY_MIN cannot be greater than SCRAPER_ITEM_DELAY_MAX")
	}

	if len(c.Scraper.Cities) == 0 {
		return fmt.Errorf("at least one city is required in SCRAPER_CITIES")
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be at least 1")
	}

	return nil
}

// ToBrowser converts the environment view into a driver configuration.
func (b BrowserConfig) ToBrowser() (browser.Config, error) {
	engine, err := browser.ParseEngine(b.Engine)
	if err != nil {
		return browser.Config{}, fmt.Errorf("WEBDRIVER: %w", err)
	}

	strategy, err := browser.ParseLoadStrategy(b.LoadStrategy)
	if err != nil {
		return browser.Config{}, fmt.Errorf("LOAD_STRATEGY: %w", err)
	}

	width, height, err := parseWindowSize(b.WindowSize)
	if err != nil {
		return browser.Config{}, fmt.Errorf("WINDOW_SIZE: %w", err)
	}

	// Playwright reads a zero timeout as no timeout, so missing elements would block forever.
	if b.ImplicitWait <= 0 {
		return browser.Config{}, fmt.Errorf("BROWSER_IMPLICIT_WAIT must be positive, got %s", b.ImplicitWait)
	}

	return browser.Config{
		Engine:               engine,
		Install:              b.Install,
		Headless:             b.Headless,
		WindowWidth:          width,
		WindowHeight:         height,
		UserAgent:            b.UserAgent,
		DisableBlinkFeatures: b.DisableBlinkFeatures,
		NoSandbox:            b.NoSandbox,
		DisableDevShmUsage:   b.DisableDevShmUsage,
		DisableCache:         b.DisableCache,
		LoadStrategy:         strategy,
		ImplicitWait:         b.ImplicitWait,
		NavigationTimeout:    b.NavigationTimeout,
	}, nil
}

func (s ScraperConfig) ToScraper() scraper.Config {
	cfg := scraper.DefaultConfig()
	cfg.CategoryURL = s.CategoryURL
	cfg.RunAttempts = s.RunAttempts
	cfg.ItemAttempts = s.ItemAttempts
	cfg.RetryDelay = s.RetryDelay
	cfg.PaginationSettle = s.PaginationSettle
	cfg.Locality = scraper.LocalitySettle{
		CityTyped:          s.CityTypedSettle,
		SuggestionChosen:   s.SuggestionSettle,
		SelectionConfirmed: s.ConfirmSettle,
	}
	cfg.FailOnItemError = s.FailOnItemError
	return cfg
}

func (s ScraperConfig) Localities() []models.Locality {
	localities := make([]models.Locality, 0, len(s.Cities))
	for _, city := range s.Cities {
		localities = append(localities, models.Locality{Name: city})
	}
	return localities
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password), d.Host, d.Port, d.Name, d.SSLMode)
}

// NewLogger builds the process logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}

	var handler slog.Handler
	if strings.EqualFold(l.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseWindowSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected WIDTH,HEIGHT, got %q", s)
	}

	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return width, height, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
