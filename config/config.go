package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "AUCTION"

	ModeAPI     = "api"
	ModeIndexer = "indexer"

	ClockSystem = "system"
	ClockChain  = "chain"
)

type Config struct {
	Mode  string
	Owner common.Address
	Clock string

	Engine struct {
		Address         common.Address
		DefaultDuration uint64
	}
	HTTP struct {
		Addr string
	}
	DB struct {
		Driver string
		DSN    string
	}
	Chain struct {
		URL          string
		StartBlock   uint64
		PollInterval time.Duration
	}
	Log struct {
		Level string
		JSON  bool
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeAPI)
	v.SetDefault("owner", "")
	v.SetDefault("clock", ClockSystem)
	v.SetDefault("engine.address", "")
	v.SetDefault("engine.default_duration", 2*24*60*60)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "auction.db")
	v.SetDefault("chain.url", "https://emerald.oasis.dev")
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.poll_interval", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads config.yaml from the working directory when present and lets
// AUCTION_* environment variables override every key.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.Infof("no config file found, using defaults and environment")
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Mode:  strings.ToLower(v.GetString("mode")),
		Clock: strings.ToLower(v.GetString("clock")),
	}
	cfg.Engine.DefaultDuration = v.GetUint64("engine.default_duration")
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.Chain.URL = v.GetString("chain.url")
	cfg.Chain.StartBlock = v.GetUint64("chain.start_block")
	cfg.Chain.PollInterval = v.GetDuration("chain.poll_interval")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.JSON = v.GetBool("log.json")

	var err error
	if cfg.Owner, err = address(v, "owner", true); err != nil {
		return nil, err
	}
	if cfg.Engine.Address, err = address(v, "engine.address", cfg.Mode == ModeIndexer); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeAPI, ModeIndexer:
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	switch cfg.Clock {
	case ClockSystem, ClockChain:
	default:
		return nil, fmt.Errorf("unknown clock %q", cfg.Clock)
	}
	return cfg, nil
}

func address(v *viper.Viper, key string, required bool) (common.Address, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", key)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not an address", key, s)
	}
	return common.HexToAddress(s), nil
}

// SetupLogging applies the log level and format to the logrus standard logger.
func (c *Config) SetupLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.Log.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}
