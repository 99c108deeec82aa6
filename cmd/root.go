package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/outreach-matcher/internal/extractor"
	"github.com/spigell/outreach-matcher/internal/matching"
	"github.com/spigell/outreach-matcher/internal/monday"
	"github.com/spigell/outreach-matcher/internal/outreach"
	"github.com/spigell/outreach-matcher/internal/pagination"
	"github.com/spigell/outreach-matcher/internal/server"
)

const (
	app       = "outreach-matcher"
	envPrefix = "OUTREACH"
)

type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Session   SessionConfig   `mapstructure:"session"`
	Server    ServerConfig    `mapstructure:"server"`
	CRM       CRMConfig       `mapstructure:"crm"`
	Outreach  OutreachConfig  `mapstructure:"outreach"`
	AI        AIConfig        `mapstructure:"ai"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type MatchingConfig struct {
	ConditionThreshold  float64 `mapstructure:"condition-threshold"`
	AgeTolerance        int     `mapstructure:"age-tolerance"`
	RequireContactEmail bool    `mapstructure:"require-contact-email"`
	PageSize            int     `mapstructure:"page-size"`
	TopN                int     `mapstructure:"top"`
}

type ExtractorConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user-agent"`
	DefaultCondition string        `mapstructure:"default-condition"`
	DefaultMinAge    int           `mapstructure:"default-min-age"`
	DefaultMaxAge    int           `mapstructure:"default-max-age"`
}

type SessionConfig struct {
	Backend      string        `mapstructure:"backend"`
	SQLitePath   string        `mapstructure:"sqlite-path"`
	IdleTTL      time.Duration `mapstructure:"idle-ttl"`
	ReapInterval time.Duration `mapstructure:"reap-interval"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

type CRMConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	APIURL       string         `mapstructure:"api-url"`
	APIKey       string         `mapstructure:"api-key"`
	APIKeyFile   string         `mapstructure:"api-key-file"`
	BoardID      string         `mapstructure:"board-id"`
	GroupID      string         `mapstructure:"group-id"`
	Columns      monday.Columns `mapstructure:"columns"`
	FetchTimeout time.Duration  `mapstructure:"fetch-timeout"`
}

type OutreachConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OutputDir      string `mapstructure:"output-dir"`
	SenderEmail    string `mapstructure:"sender-email"`
	SuccessSummary string `mapstructure:"success-summary"`
	CampaignName   string `mapstructure:"campaign-name"`
	Concurrency    int    `mapstructure:"concurrency"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "outreach-matcher finds clinical trials that fit a recruitment campaign and drafts outreach for them",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is outreach-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if err := setupViper(viper.GetViper(), cfgFile); err != nil {
		log.Fatal(err)
	}
}

// setupViper registers defaults and environment bindings, then reads the config file.
// A missing default config file is not an error; a missing explicit one is.
func setupViper(v *viper.Viper, file string) error {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("crm.api-key-file", "MONDAY_API_KEY_FILE"); err != nil {
		return err
	}
	if err := v.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		return err
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(app)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.path", "indexed_studies.json")

	v.SetDefault("matching.condition-threshold", matching.DefaultConditionThreshold)
	v.SetDefault("matching.age-tolerance", matching.DefaultAgeTolerance)
	v.SetDefault("matching.require-contact-email", true)
	v.SetDefault("matching.page-size", pagination.DefaultPageSize)
	v.SetDefault("matching.top", 0)

	v.SetDefault("extractor.timeout", 10*time.Second)
	v.SetDefault("extractor.user-agent", "")
	v.SetDefault("extractor.default-condition", extractor.DefaultCondition)
	v.SetDefault("extractor.default-min-age", extractor.DefaultMinAge)
	v.SetDefault("extractor.default-max-age", extractor.DefaultMaxAge)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.sqlite-path", "data/sessions.db")
	v.SetDefault("session.idle-ttl", 24*time.Hour)
	v.SetDefault("session.reap-interval", 5*time.Minute)

	v.SetDefault("server.addr", server.DefaultAddr)
	v.SetDefault("server.allowed-origins", []string{"*"})

	v.SetDefault("crm.enabled", false)
	v.SetDefault("crm.api-url", "")
	v.SetDefault("crm.api-key", "")
	v.SetDefault("crm.api-key-file", "")
	v.SetDefault("crm.board-id", monday.DefaultBoardID)
	v.SetDefault("crm.group-id", monday.DefaultGroupID)
	v.SetDefault("crm.fetch-timeout", 10*time.Second)

	v.SetDefault("outreach.enabled", true)
	v.SetDefault("outreach.output-dir", outreach.DefaultOutputDir)
	v.SetDefault("outreach.sender-email", outreach.DefaultSenderMail)
	v.SetDefault("outreach.success-summary", "")
	v.SetDefault("outreach.campaign-name", "")
	v.SetDefault("outreach.concurrency", 4)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.model", "")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
}

func getConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}
