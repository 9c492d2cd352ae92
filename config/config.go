package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultHost          = "localhost"
	defaultPort          = 6666
	defaultUsersFile     = "resources/users.json"
	defaultErrorLog      = "resources/errors.log"
	defaultJournalDir    = "wal/journal"
	defaultFeedBaseURL   = "https://rest.coinapi.io"
	defaultFeedTimeout   = 10 * time.Second
	defaultCacheCapacity = 100
	defaultStaleAfter    = 30 * time.Minute
	defaultWriteTimeout  = 5 * time.Second
	defaultMaxLineSize   = 64 * 1024
	defaultHashCost      = 10
	defaultLogEnv        = "development"

	// feedKeyEnv holds the CoinAPI key when it is not set in YAML.
	feedKeyEnv = "COINAPI_KEY"
)

// Config is the validated process configuration.
type Config struct {
	Host          string
	Port          int
	UsersFile     string
	ErrorLog      string
	JournalDir    string
	FeedBaseURL   string
	FeedAPIKey    string
	FeedTimeout   time.Duration
	CacheCapacity int
	StaleAfter    time.Duration
	WriteTimeout  time.Duration
	MaxLineSize   int
	HashCost      int
	// OpsAddr enables the read-only HTTP endpoint when not empty.
	OpsAddr string
	LogEnv  string
}

// Addr returns host:port of the wallet listener.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConfigTmp mirrors the YAML document before defaults and validation.
type ConfigTmp struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	UsersFile     string        `yaml:"users_file"`
	ErrorLog      string        `yaml:"error_log"`
	JournalDir    string        `yaml:"journal_dir"`
	FeedBaseURL   string        `yaml:"feed_base_url"`
	FeedAPIKey    string        `yaml:"feed_api_key"`
	FeedTimeout   time.Duration `yaml:"feed_timeout"`
	CacheCapacity int           `yaml:"cache_capacity"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxLineSize   int           `yaml:"max_line_size"`
	HashCost      int           `yaml:"hash_cost"`
	OpsAddr       string        `yaml:"ops_addr"`
	LogEnv        string        `yaml:"log_env"`
}

// Get reads the configuration from the process command line.
func Get() (Config, error) {
	return Parse(os.Args[1:])
}

// Parse reads flags from args, the optional .env file and the optional YAML file.
// Flags win over YAML, YAML wins over the environment, the environment wins over defaults.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("cryptowallet", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to yaml config")
	envPath := fs.String("env", ".env", "path to .env file")
	host := fs.String("host", "", "listen host")
	port := fs.Int("port", 0, "listen port")
	opsAddr := fs.String("ops", "", "address of the ops http endpoint, empty to disable")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadEnv(*envPath); err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if *configPath != "" {
		var err error
		tmp, err = readYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
	}

	if *host != "" {
		tmp.Host = *host
	}
	if *port != 0 {
		tmp.Port = *port
	}
	if *opsAddr != "" {
		tmp.OpsAddr = *opsAddr
	}

	return tmp.toConfig()
}

func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

func readYaml(path string) (ConfigTmp, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return ConfigTmp{}, errors.Wrap(err, "read yaml config")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return ConfigTmp{}, errors.Wrap(err, "decode yaml config")
	}
	return tmp, nil
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		Host:          stringOr(c.Host, defaultHost),
		Port:          intOr(c.Port, defaultPort),
		UsersFile:     stringOr(c.UsersFile, defaultUsersFile),
		ErrorLog:      stringOr(c.ErrorLog, defaultErrorLog),
		JournalDir:    stringOr(c.JournalDir, defaultJournalDir),
		FeedBaseURL:   stringOr(c.FeedBaseURL, defaultFeedBaseURL),
		FeedAPIKey:    stringOr(c.FeedAPIKey, os.Getenv(feedKeyEnv)),
		FeedTimeout:   durationOr(c.FeedTimeout, defaultFeedTimeout),
		CacheCapacity: intOr(c.CacheCapacity, defaultCacheCapacity),
		StaleAfter:    durationOr(c.StaleAfter, defaultStaleAfter),
		WriteTimeout:  durationOr(c.WriteTimeout, defaultWriteTimeout),
		MaxLineSize:   intOr(c.MaxLineSize, defaultMaxLineSize),
		HashCost:      intOr(c.HashCost, defaultHashCost),
		OpsAddr:       c.OpsAddr,
		LogEnv:        stringOr(c.LogEnv, stringOr(os.Getenv("LOG_ENV"), defaultLogEnv)),
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("incorrect 'port' param in yaml config: %d", cfg.Port)
	}
	if cfg.CacheCapacity < 0 {
		return Config{}, fmt.Errorf("incorrect 'cache_capacity' param in yaml config (must be positive): %d", cfg.CacheCapacity)
	}
	if cfg.MaxLineSize < 0 {
		return Config{}, fmt.Errorf("incorrect 'max_line_size' param in yaml config (must be positive): %d", cfg.MaxLineSize)
	}
	if cfg.HashCost < 4 || cfg.HashCost > 31 {
		return Config{}, fmt.Errorf("incorrect 'hash_cost' param in yaml config (must be 4..31): %d", cfg.HashCost)
	}

	return cfg, nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
