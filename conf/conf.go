package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config contains the configuration for the app
type Config struct {
	// Telegram
	TelegramAuthToken string
	TelegramAPIDebug  bool
	AllowedUsers      map[int64]bool

	// Database
	DBDriver string
	DBPath   string
	DBDSN    string

	// Passes
	FeedUpdateInterval time.Duration
	FeedUpdateDelay    time.Duration
	FetchTimeout       time.Duration
	ParallelFetch      int
	InsecureTLSHosts   []string
	FetchMetadata      bool
	ValidatorCacheSize int

	// Delivery
	DeliveryTimeout time.Duration
	DeliveryRate    float64

	// Operations
	MetricsListen string
	LogLevel      string
	LogFormat     string
}

// LoadConfig reads the configuration from the environment, the .env file, and the optional config file
// It also configures the logger
func LoadConfig() (*Config, error) {
	// Variables in .env don't override the ones already set
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Defaults
	viper.SetDefault("TelegramAuthToken", "")
	viper.SetDefault("TelegramAPIDebug", false)
	viper.SetDefault("AllowedUsers", nil)
	viper.SetDefault("DBDriver", "sqlite3")
	viper.SetDefault("DBPath", "./data/rss-notifier.db")
	viper.SetDefault("DBDSN", "")
	viper.SetDefault("FeedUpdateInterval", 15*time.Minute)
	viper.SetDefault("FeedUpdateDelay", 2*time.Second)
	viper.SetDefault("FetchTimeout", 20*time.Second)
	viper.SetDefault("ParallelFetch", 4)
	viper.SetDefault("InsecureTLSHosts", nil)
	viper.SetDefault("FetchMetadata", false)
	viper.SetDefault("ValidatorCacheSize", 1024)
	viper.SetDefault("DeliveryTimeout", 10*time.Second)
	viper.SetDefault("DeliveryRate", 20)
	viper.SetDefault("MetricsListen", "")
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("LogFormat", "text")

	// Env
	viper.SetEnvPrefix("BOT")
	viper.AutomaticEnv()

	// Config file
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.rss-notifier")
	viper.AddConfigPath("/etc/rss-notifier")

	// Read the config
	err = viper.ReadInConfig()
	if err != nil {
		// Ignore errors if the config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Get()
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	err = setupLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	return &Config{
		TelegramAuthToken:  viper.GetString("TelegramAuthToken"),
		TelegramAPIDebug:   viper.GetBool("TelegramAPIDebug"),
		AllowedUsers:       getAllowedUsers(),
		DBDriver:           viper.GetString("DBDriver"),
		DBPath:             viper.GetString("DBPath"),
		DBDSN:              viper.GetString("DBDSN"),
		FeedUpdateInterval: viper.GetDuration("FeedUpdateInterval"),
		FeedUpdateDelay:    viper.GetDuration("FeedUpdateDelay"),
		FetchTimeout:       viper.GetDuration("FetchTimeout"),
		ParallelFetch:      viper.GetInt("ParallelFetch"),
		InsecureTLSHosts:   getList("InsecureTLSHosts"),
		FetchMetadata:      viper.GetBool("FetchMetadata"),
		ValidatorCacheSize: viper.GetInt("ValidatorCacheSize"),
		DeliveryTimeout:    viper.GetDuration("DeliveryTimeout"),
		DeliveryRate:       viper.GetFloat64("DeliveryRate"),
		MetricsListen:      viper.GetString("MetricsListen"),
		LogLevel:           viper.GetString("LogLevel"),
		LogFormat:          viper.GetString("LogFormat"),
	}
}

// Validate returns an error if the configuration has invalid values
func (c *Config) Validate() error {
	if c.FeedUpdateInterval <= 0 {
		return errors.New("'FeedUpdateInterval' must be greater than zero")
	}
	if c.FeedUpdateDelay < 0 {
		return errors.New("'FeedUpdateDelay' must not be negative")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("'FetchTimeout' must be greater than zero")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("'DeliveryTimeout' must be greater than zero")
	}
	if c.DeliveryRate < 0 {
		return errors.New("'DeliveryRate' must not be negative")
	}
	if c.ParallelFetch < 1 {
		return errors.New("'ParallelFetch' must be at least 1")
	}
	if c.ValidatorCacheSize < 1 {
		return errors.New("'ValidatorCacheSize' must be at least 1")
	}
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported value for 'DBDriver': %s", c.DBDriver)
	}
	return nil
}

// Returns the list of allowed users (if any)
// Returns a map so lookups are faster
func getAllowedUsers() (allowedUsers map[int64]bool) {
	// From the config file this is a list, from env vars a string
	for _, s := range getList("AllowedUsers") {
		// Ignore invalid ones
		num, err := strconv.ParseInt(s, 10, 64)
		if err != nil || num < 1 {
			continue
		}
		if allowedUsers == nil {
			allowedUsers = make(map[int64]bool)
		}
		allowedUsers[num] = true
	}
	return
}

// Returns a list from a config key, which can be a list or a string with values separated by commas or spaces
func getList(key string) []string {
	var res []string
	for _, v := range viper.GetStringSlice(key) {
		res = append(res, strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' '
		})...)
	}
	return res
}

func setupLogger(level string, format string) error {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info", "":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "panic":
		log.SetLevel(log.PanicLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	default:
		return fmt.Errorf("invalid value for 'LogLevel': %s", level)
	}

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("invalid value for 'LogFormat': %s", format)
	}
	return nil
}
