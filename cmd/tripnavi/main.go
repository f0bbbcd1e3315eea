package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tripnavi/tripnavi/internal/api"
	"github.com/tripnavi/tripnavi/internal/bot"
	"github.com/tripnavi/tripnavi/internal/docs"
	"github.com/tripnavi/tripnavi/internal/genai"
	"github.com/tripnavi/tripnavi/internal/search"
	"github.com/tripnavi/tripnavi/internal/store"
	"github.com/tripnavi/tripnavi/internal/tts"
	"github.com/tripnavi/tripnavi/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TripNavi state data
	DefaultStateDir = "/var/lib/tripnavi"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "tripnavi.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Open the session store
	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Build the GenAI client
	genaiClient, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to create GenAI client", "error", err)
		os.Exit(1)
	}

	// Document store for itinerary grounding
	docStore := docs.NewStore(docs.WithDir(*flags.docsDir))

	// Optional collaborators
	flowOpts := buildFlowOptions(flags, genaiClient)

	flow := bot.NewTravelFlow(st, genaiClient, docStore, flowOpts...)

	server, err := api.NewServer(flow, buildAPIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to create API server", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping TripNavi with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"docs_dir", *flags.docsDir,
		"audio_dir", *flags.audioDir,
		"search_enabled", *flags.serperKey != "")
	if err := server.Run(); err != nil {
		slog.Error("TripNavi failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TripNavi exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	OpenAIKey     string
	SerperKey     string
	ChannelSecret string
	ChannelToken  string
	PublicBaseURL string
	APIAddr       string
	DocsDir       string
	AudioDir      string
	PromptFile    string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	serperKey     *string
	channelSecret *string
	channelToken  *string
	publicBaseURL *string
	apiAddr       *string
	docsDir       *string
	audioDir      *string
	promptFile    *string
}

// initializeLogger sets up structured logging; TRIPNAVI_DEBUG lowers the level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TRIPNAVI_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("TRIPNAVI_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		SerperKey:     os.Getenv("SERPER_API_KEY"),
		ChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelToken:  os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),
		APIAddr:       os.Getenv("API_ADDR"),
		DocsDir:       os.Getenv("DOCS_DIR"),
		AudioDir:      os.Getenv("AUDIO_DIR"),
		PromptFile:    os.Getenv("SYSTEM_PROMPT_FILE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TRIPNAVI_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	if config.DocsDir == "" {
		config.DocsDir = "docs"
	}
	if config.AudioDir == "" {
		config.AudioDir = filepath.Join(config.StateDir, "audio")
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TRIPNAVI_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SERPER_API_KEY_SET", config.SerperKey != "",
		"LINE_CHANNEL_SECRET_SET", config.ChannelSecret != "",
		"LINE_CHANNEL_ACCESS_TOKEN_SET", config.ChannelToken != "",
		"PUBLIC_BASE_URL", config.PublicBaseURL,
		"API_ADDR", config.APIAddr,
		"DOCS_DIR", config.DocsDir,
		"AUDIO_DIR", config.AudioDir,
		"SYSTEM_PROMPT_FILE", config.PromptFile)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for TripNavi data (overrides $TRIPNAVI_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		serperKey:     flag.String("serper-api-key", config.SerperKey, "Serper search API key (overrides $SERPER_API_KEY)"),
		channelSecret: flag.String("channel-secret", config.ChannelSecret, "LINE channel secret (overrides $LINE_CHANNEL_SECRET)"),
		channelToken:  flag.String("channel-token", config.ChannelToken, "LINE channel access token (overrides $LINE_CHANNEL_ACCESS_TOKEN)"),
		publicBaseURL: flag.String("public-base-url", config.PublicBaseURL, "externally reachable base URL for audio links (overrides $PUBLIC_BASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		docsDir:       flag.String("docs-dir", config.DocsDir, "directory containing itinerary documents (overrides $DOCS_DIR)"),
		audioDir:      flag.String("audio-dir", config.AudioDir, "directory for generated audio files (overrides $AUDIO_DIR)"),
		promptFile:    flag.String("system-prompt-file", config.PromptFile, "file overriding the built-in system prompt (overrides $SYSTEM_PROMPT_FILE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"serperKeySet", *flags.serperKey != "",
		"apiAddr", *flags.apiAddr,
		"docsDir", *flags.docsDir,
		"audioDir", *flags.audioDir)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// openStore selects and opens the session store backend from the DSN
func openStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildFlowOptions constructs the optional bot collaborators
func buildFlowOptions(flags Flags, genaiClient *genai.Client) []bot.Option {
	var flowOpts []bot.Option

	if *flags.serperKey != "" {
		searcher, err := search.NewClient(search.WithAPIKey(*flags.serperKey))
		if err != nil {
			slog.Error("Failed to create search client, continuing without search", "error", err)
		} else {
			flowOpts = append(flowOpts, bot.WithSearch(searcher))
		}
	} else {
		slog.Info("No SERPER_API_KEY set, live search disabled")
	}

	synthesizer, err := tts.NewSynthesizer(genaiClient, tts.WithDir(*flags.audioDir))
	if err != nil {
		slog.Error("Failed to create speech synthesizer, continuing text-only", "error", err)
	} else {
		flowOpts = append(flowOpts, bot.WithSynthesizer(synthesizer))
	}

	if *flags.promptFile != "" {
		flowOpts = append(flowOpts, bot.WithSystemPromptFile(*flags.promptFile))
	}
	flowOpts = append(flowOpts, bot.WithTurnTimeout(util.ParseDurationEnv("TURN_TIMEOUT", bot.DefaultTurnTimeout)))

	return flowOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	apiOpts := []api.Option{
		api.WithChannelSecret(*flags.channelSecret),
		api.WithChannelToken(*flags.channelToken),
		api.WithPublicBaseURL(*flags.publicBaseURL),
		api.WithAudioDir(*flags.audioDir),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
