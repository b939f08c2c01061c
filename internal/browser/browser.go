package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrEngineUnavailable marks failures to obtain or start the browser engine.
	// They are environment problems and are never retried.
	ErrEngineUnavailable = errors.New("browser engine unavailable")
	// ErrElementNotFound is returned when a locator matches nothing within the implicit wait.
	ErrElementNotFound = errors.New("element not found")
	// ErrNestedIsolation is returned when an isolated page is requested while one is already active.
	ErrNestedIsolation = errors.New("isolated page already active")
)

type Engine string

const (
	EngineChromium Engine = "CHROMIUM"
	EngineChrome   Engine = "CHROME"
	EngineFirefox  Engine = "FIREFOX"
)

func ParseEngine(s string) (Engine, error) {
	switch e := Engine(strings.ToUpper(strings.TrimSpace(s))); e {
	case EngineChromium, EngineChrome, EngineFirefox:
		return e, nil
	default:
		return "", fmt.Errorf("unknown browser engine %q", s)
	}
}

func (e Engine) chromiumFamily() bool {
	return e == EngineChromium || e == EngineChrome
}

// installName is the name playwright's installer knows the engine by.
func (e Engine) installName() string {
	switch e {
	case EngineChrome:
		return "chrome"
	case EngineFirefox:
		return "firefox"
	default:
		return "chromium"
	}
}

// LoadStrategy controls when a navigation is considered finished.
type LoadStrategy string

const (
	LoadNormal LoadStrategy = "normal"
	LoadEager  LoadStrategy = "eager"
	LoadNone   LoadStrategy = "none"
)

func ParseLoadStrategy(s string) (LoadStrategy, error) {
	switch l := LoadStrategy(strings.ToLower(strings.TrimSpace(s))); l {
	case LoadNormal, LoadEager, LoadNone:
		return l, nil
	case "":
		return LoadNormal, nil
	default:
		return "", fmt.Errorf("unknown page load strategy %q", s)
	}
}

func (l LoadStrategy) waitUntil() *playwright.WaitUntilState {
	switch l {
	case LoadEager:
		return playwright.WaitUntilStateDomcontentloaded
	case LoadNone:
		return playwright.WaitUntilStateCommit
	default:
		return playwright.WaitUntilStateLoad
	}
}

// Config selects the engine and the options it is launched with.
type Config struct {
	Engine               Engine
	Install              bool
	Headless             bool
	WindowWidth          int
	WindowHeight         int
	UserAgent            string
	DisableBlinkFeatures string
	NoSandbox            bool
	DisableDevShmUsage   bool
	DisableCache         bool
	LoadStrategy         LoadStrategy
	// ImplicitWait bounds every element lookup.
	ImplicitWait      time.Duration
	NavigationTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Engine:               EngineChromium,
		Install:              true,
		Headless:             true,
		WindowWidth:          1920,
		WindowHeight:         1080,
		UserAgent:            "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		DisableBlinkFeatures: "AutomationControlled",
		NoSandbox:            true,
		DisableDevShmUsage:   true,
		LoadStrategy:         LoadEager,
		ImplicitWait:         6 * time.Second,
		NavigationTimeout:    60 * time.Second,
	}
}

// launchArgs returns the command line switches for chromium-based engines.
// Firefox does not understand them and gets preferences instead.
func (c Config) launchArgs() []string {
	if !c.Engine.chromiumFamily() {
		return nil
	}

	var args []string
	if c.DisableBlinkFeatures != "" {
		args = append(args, "--disable-blink-features="+c.DisableBlinkFeatures)
	}
	if c.UserAgent != "" {
		args = append(args, "--user-agent="+c.UserAgent)
	}
	if c.WindowWidth > 0 && c.WindowHeight > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", c.WindowWidth, c.WindowHeight))
	}
	if c.NoSandbox {
		args = append(args, "--no-sandbox")
	}
	if c.DisableDevShmUsage {
		args = append(args, "--disable-dev-shm-usage")
	}
	if c.DisableCache {
		args = append(args, "--disable-cache")
	}
	return args
}

func (c Config) firefoxPrefs() map[string]interface{} {
	if c.Engine != EngineFirefox || !c.DisableCache {
		return nil
	}
	return map[string]interface{}{
		"browser.cache.disk.enable":   false,
		"browser.cache.memory.enable": false,
	}
}

// PlaywrightSession is a launched browser with one primary page and at most
// one isolated page open at any time.
type PlaywrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	primary *playwrightPage
	active  *playwrightPage
	cfg     Config
	logger  *slog.Logger
}

// Acquire installs (when configured) and launches the engine, then opens the primary page.
// Every failure is fatal for the run and wraps ErrEngineUnavailable.
func Acquire(ctx context.Context, cfg Config, logger *slog.Logger) (*PlaywrightSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger = logger.With("component", "browser")

	if cfg.Install {
		logger.Info("installing browser engine", "engine", cfg.Engine)
		err := playwright.Install(&playwright.RunOptions{
			Browsers: []string{cfg.Engine.installName()},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to install %s: %w", ErrEngineUnavailable, cfg.Engine, err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start playwright: %w", ErrEngineUnavailable, err)
	}

	browserType := pw.Chromium
	if cfg.Engine == EngineFirefox {
		browserType = pw.Firefox
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:         playwright.Bool(cfg.Headless),
		Args:             cfg.launchArgs(),
		FirefoxUserPrefs: cfg.firefoxPrefs(),
	}
	if cfg.Engine == EngineChrome {
		launchOpts.Channel = playwright.String("chrome")
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("%w: failed to launch %s: %w", ErrEngineUnavailable, cfg.Engine, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.WindowWidth,
			Height: cfg.WindowHeight,
		},
	}
	if cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(cfg.UserAgent)
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("%w: failed to create browser context: %w", ErrEngineUnavailable, err)
	}

	s := &PlaywrightSession{
		pw:      pw,
		browser: browser,
		context: bctx,
		cfg:     cfg,
		logger:  logger,
	}

	page, err := s.openPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	s.primary = page
	s.active = page

	logger.Info("browser session acquired",
		"engine", cfg.Engine,
		"headless", cfg.Headless,
		"load_strategy", cfg.LoadStrategy)

	return s, nil
}

func (s *PlaywrightSession) openPage() (*playwrightPage, error) {
	raw, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	raw.SetDefaultTimeout(float64(s.cfg.ImplicitWait.Milliseconds()))
	if s.cfg.NavigationTimeout > 0 {
		raw.SetDefaultNavigationTimeout(float64(s.cfg.NavigationTimeout.Milliseconds()))
	}

	return &playwrightPage{
		page:         raw,
		waitUntil:    s.cfg.LoadStrategy.waitUntil(),
		implicitWait: s.cfg.ImplicitWait,
	}, nil
}

// Page returns the active page.
func (s *PlaywrightSession) Page() Page {
	return s.active
}

// Isolated opens a fresh page, makes it active and runs fn against it. The page is
// closed and the primary page restored however fn returns.
func (s *PlaywrightSession) Isolated(ctx context.Context, fn func(Page) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.active != s.primary {
		return ErrNestedIsolation
	}

	page, err := s.openPage()
	if err != nil {
		return err
	}
	s.active = page

	defer func() {
		if err := page.page.Close(); err != nil {
			s.logger.Warn("failed to close isolated page", "error", err)
		}
		s.active = s.primary
	}()

	return fn(page)
}

// Close tears down the context, the browser and the driver, in that order.
func (s *PlaywrightSession) Close() error {
	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}
