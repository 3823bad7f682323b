package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every section of the service configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	AI       AIConfig
	Speech   SpeechConfig
	WhatsApp WhatsAppConfig
	Storage  StorageConfig
	Intake   IntakeConfig
	Plan     PlanConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	whatsapp, err := loadWhatsAppConfig()
	if err != nil {
		return nil, err
	}

	intake, err := loadIntakeConfig()
	if err != nil {
		return nil, err
	}

	plan, err := loadPlanConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		AI:       ai,
		Speech:   speech,
		WhatsApp: whatsapp,
		Storage:  StorageConfig{Path: getEnvOrDefault("SQLITE_PATH", "finchat.db")},
		Intake:   intake,
		Plan:     plan,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	// ChatAPI mounts the /chat sandbox routes.
	ChatAPI bool
}

func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	chatAPI, err := parseBoolEnv("CHAT_API_ENABLED", false)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted verbatim.
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown, ChatAPI: chatAPI}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown, ChatAPI: chatAPI}, nil
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

// AI providers.
const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// AIConfig describes the language model used for intent and extraction.
type AIConfig struct {
	Provider     string
	APIKey       string
	AccessKey    string
	SecretKey    string
	Model        string
	BaseURL      string
	Region       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// Enabled reports whether the selected provider has the credentials it needs.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return false
	}
}

// NewChatModel builds the Ark chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 8*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:     strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER"))),
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		Timeout:      timeout,
	}

	if cfg.Provider == "" {
		switch {
		case cfg.Model != "" && (cfg.APIKey != "" || cfg.AccessKey != ""):
			cfg.Provider = ProviderArk
		case cfg.GeminiAPIKey != "":
			cfg.Provider = ProviderGemini
		}
	}
	if cfg.Provider != "" && cfg.Provider != ProviderArk && cfg.Provider != ProviderGemini {
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value: %q", cfg.Provider)
	}
	return cfg, nil
}

// Speech providers.
const (
	SpeechVolcengine = "volcengine"
	SpeechGemini     = "gemini"
)

// SpeechConfig describes the voice-note transcription backend.
type SpeechConfig struct {
	Provider       string
	AppID          string
	AccessToken    string
	APIKey         string
	BaseURL        string
	ASRLanguage    string
	ConcurrentMode bool
	GeminiAPIKey   string
	GeminiModel    string
	Timeout        time.Duration
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_CONCURRENT_MODE", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("SPEECH_PROVIDER")))
	if provider == "" {
		switch {
		case appID != "" && accessToken != "":
			provider = SpeechVolcengine
		case geminiKey != "":
			provider = SpeechGemini
		}
	}

	var enabled bool
	switch provider {
	case SpeechVolcengine:
		enabled = appID != "" && accessToken != ""
	case SpeechGemini:
		enabled = geminiKey != ""
	case "":
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_PROVIDER value: %q", provider)
	}

	return SpeechConfig{
		Provider:       provider,
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"),
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "pt-BR"),
		ConcurrentMode: concurrent,
		GeminiAPIKey:   geminiKey,
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		Timeout:        timeout,
		Enabled:        enabled,
	}, nil
}

// WhatsAppConfig describes the Cloud API credentials.
type WhatsAppConfig struct {
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string
	GraphBaseURL  string
	Timeout       time.Duration
}

func loadWhatsAppConfig() (WhatsAppConfig, error) {
	timeout, err := parseDurationEnv("WHATSAPP_TIMEOUT", 10*time.Second)
	if err != nil {
		return WhatsAppConfig{}, err
	}

	return WhatsAppConfig{
		VerifyToken:   strings.TrimSpace(os.Getenv("WHATSAPP_VERIFY_TOKEN")),
		AppSecret:     strings.TrimSpace(os.Getenv("WHATSAPP_APP_SECRET")),
		AccessToken:   strings.TrimSpace(os.Getenv("WHATSAPP_ACCESS_TOKEN")),
		PhoneNumberID: strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID")),
		GraphBaseURL:  getEnvOrDefault("WHATSAPP_GRAPH_URL", "https://graph.facebook.com/v21.0"),
		Timeout:       timeout,
	}, nil
}

// StorageConfig points at the SQLite database file.
type StorageConfig struct {
	Path string
}

// IntakeConfig tunes the conversational pipeline.
type IntakeConfig struct {
	SessionTTL         time.Duration
	PendingTTL         time.Duration
	HistoryLimit       int
	SweepInterval      time.Duration
	ProcessingTimeout  time.Duration
	DirectoryTimeout   time.Duration
	PersistenceTimeout time.Duration
	DefaultLocale      string
}

func loadIntakeConfig() (IntakeConfig, error) {
	sessionTTL, err := parseDurationEnv("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return IntakeConfig{}, err
	}

	pendingTTL, err := parseDurationEnv("PENDING_TTL", 5*time.Minute)
	if err != nil {
		return IntakeConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return IntakeConfig{}, err
	}

	processing, err := parseDurationEnv("INTAKE_PROCESSING_TIMEOUT", 60*time.Second)
	if err != nil {
		return IntakeConfig{}, err
	}

	directory, err := parseDurationEnv("DIRECTORY_TIMEOUT", 5*time.Second)
	if err != nil {
		return IntakeConfig{}, err
	}

	persistence, err := parseDurationEnv("PERSISTENCE_TIMEOUT", 10*time.Second)
	if err != nil {
		return IntakeConfig{}, err
	}

	history := 20
	if override, err := parseOptionalIntEnv("SESSION_HISTORY_LIMIT"); err != nil {
		return IntakeConfig{}, err
	} else if override != nil {
		if *override < 1 {
			history = 1
		} else {
			history = *override
		}
	}

	return IntakeConfig{
		SessionTTL:         sessionTTL,
		PendingTTL:         pendingTTL,
		HistoryLimit:       history,
		SweepInterval:      sweep,
		ProcessingTimeout:  processing,
		DirectoryTimeout:   directory,
		PersistenceTimeout: persistence,
		DefaultLocale:      getEnvOrDefault("DEFAULT_LOCALE", "pt-BR"),
	}, nil
}

// PlanConfig holds the usage caps enforced per plan.
type PlanConfig struct {
	FreeMonthlyWhatsApp int
	FreeSharedCap       int
	ProSharedCap        int
	PremiumSharedCap    int
	SharedWindow        time.Duration
}

func loadPlanConfig() (PlanConfig, error) {
	window, err := parseDurationEnv("PLAN_SHARED_WINDOW", 30*24*time.Hour)
	if err != nil {
		return PlanConfig{}, err
	}

	cfg := PlanConfig{
		FreeMonthlyWhatsApp: 30,
		FreeSharedCap:       5,
		ProSharedCap:        50,
		PremiumSharedCap:    0,
		SharedWindow:        window,
	}

	overrides := []struct {
		key    string
		target *int
	}{
		{"PLAN_FREE_WHATSAPP_MONTHLY", &cfg.FreeMonthlyWhatsApp},
		{"PLAN_FREE_SHARED_CAP", &cfg.FreeSharedCap},
		{"PLAN_PRO_SHARED_CAP", &cfg.ProSharedCap},
		{"PLAN_PREMIUM_SHARED_CAP", &cfg.PremiumSharedCap},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return PlanConfig{}, err
		}
		if val != nil {
			*o.target = *val
		}
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv accepts Go durations ("90s") or a bare number of seconds.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
