package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPlaywright = "playwright"
	DriverChromedp   = "chromedp"

	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultOpenAIModel    = "gpt-4o"
)

type Config struct {
	AppConfig     *AppConfig
	AIConfig      *AIConfig
	BrowserConfig *BrowserConfig
	AgentConfig   *AgentConfig
}

type AppConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	Debug          bool   `envconfig:"DEBUG" default:"false"`
	LogFile        string `envconfig:"LOG_FILE"`
	LogMaxSizeMB   int    `envconfig:"LOG_MAX_SIZE_MB" default:"20"`
	LogMaxBackups  int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	TracingEnabled bool   `envconfig:"TRACING_ENABLED" default:"false"`
}

type AIConfig struct {
	Provider  string `envconfig:"AI_PROVIDER" default:"anthropic"`
	APIKey    string `envconfig:"AI_API_KEY" required:"true"`
	Model     string `envconfig:"AI_MODEL"`
	BaseURL   string `envconfig:"AI_BASE_URL"`
	MaxTokens int    `envconfig:"AI_MAX_TOKENS" default:"1024"`
}

type BrowserConfig struct {
	Driver         string `envconfig:"BROWSER_DRIVER" default:"playwright"`
	Headless       bool   `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo         int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout        int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	ViewportWidth  int    `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight int    `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"1080"`
	UserDataDir    string `envconfig:"BROWSER_USER_DATA_DIR"`
	ScreenshotDir  string `envconfig:"BROWSER_SCREENSHOT_DIR"`
	SkipInstall    bool   `envconfig:"BROWSER_SKIP_INSTALL" default:"false"`
}

type AgentConfig struct {
	StartURL           string        `envconfig:"AGENT_START_URL" default:"https://www.google.com"`
	MaxSteps           int           `envconfig:"AGENT_MAX_STEPS" default:"150"`
	HistoryLimit       int           `envconfig:"AGENT_HISTORY_LIMIT" default:"0"`
	SelectAllKey       string        `envconfig:"AGENT_SELECT_ALL_KEY"`
	SettleDelay        time.Duration `envconfig:"AGENT_SETTLE_DELAY" default:"3s"`
	WaitDuration       time.Duration `envconfig:"AGENT_WAIT_DURATION" default:"5s"`
	WindowScrollPx     int           `envconfig:"AGENT_WINDOW_SCROLL_PX" default:"500"`
	ElementScrollPx    int           `envconfig:"AGENT_ELEMENT_SCROLL_PX" default:"200"`
	AnnotateAttempts   int           `envconfig:"AGENT_ANNOTATE_ATTEMPTS" default:"10"`
	AnnotateRetryDelay time.Duration `envconfig:"AGENT_ANNOTATE_RETRY_DELAY" default:"500ms"`
	MaxModelErrors     int           `envconfig:"AGENT_MAX_MODEL_ERRORS" default:"3"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	if conf.AIConfig.Model == "" {
		conf.AIConfig.Model = DefaultModel(conf.AIConfig.Provider)
	}

	conf.AgentConfig.SelectAllKey = ResolveSelectAllKey(conf.AgentConfig.SelectAllKey, runtime.GOOS)

	return &conf, nil
}

func (c *Config) validate() error {
	switch c.BrowserConfig.Driver {
	case DriverPlaywright, DriverChromedp:
	default:
		return fmt.Errorf("unsupported BROWSER_DRIVER %q", c.BrowserConfig.Driver)
	}

	switch c.AIConfig.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.AIConfig.Provider)
	}

	if c.AgentConfig.MaxSteps <= 0 {
		return fmt.Errorf("AGENT_MAX_STEPS must be positive, got %d", c.AgentConfig.MaxSteps)
	}

	if c.AgentConfig.AnnotateAttempts <= 0 {
		return fmt.Errorf("AGENT_ANNOTATE_ATTEMPTS must be positive, got %d", c.AgentConfig.AnnotateAttempts)
	}

	return nil
}

// ResolveSelectAllKey returns the configured combo, or the platform default
// when none is set. Called once at start-up.
func ResolveSelectAllKey(configured, goos string) string {
	if configured != "" {
		return configured
	}

	if goos == "darwin" {
		return "Meta+A"
	}

	return "Control+A"
}

// DefaultModel returns the model used for provider when AI_MODEL is unset.
func DefaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return defaultOpenAIModel
	}

	return defaultAnthropicModel
}
