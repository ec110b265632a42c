package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHost              = "0.0.0.0"
	defaultPort              = 8083
	defaultLogLevel          = "info"
	defaultLogOutput         = "stdout"
	defaultDataDir           = "./data"
	defaultGracePeriodSecond = 30
)

// Config holds the Tallying Server's configuration.
type Config struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	LogLevel           string `mapstructure:"loglevel"`
	LogOutput          string `mapstructure:"logoutput"`
	KeyPath            string `mapstructure:"keypath"`
	BBURL              string `mapstructure:"bburl"`
	GracePeriodSeconds int    `mapstructure:"graceperiodseconds"`
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("loglevel", defaultLogLevel)
	v.SetDefault("logoutput", defaultLogOutput)
	v.SetDefault("keypath", defaultDataDir+"/ts-key.json")
	v.SetDefault("graceperiodseconds", defaultGracePeriodSecond)

	flag.StringP("host", "h", defaultHost, "API host")
	flag.IntP("port", "p", defaultPort, "API port")
	flag.StringP("loglevel", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("logoutput", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.String("keypath", defaultDataDir+"/ts-key.json", "path to TS's persisted secret-key file")
	flag.String("bburl", "", "Bulletin Board base URL (required)")
	flag.Int("graceperiodseconds", defaultGracePeriodSecond, "seconds to wait after an election's published end before tallying it")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "tallying-server\n\nUsage: tallying-server [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available, prefixed with TS_, e.g. TS_BBURL.\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.BBURL == "" {
		return fmt.Errorf("bburl is required (use --bburl flag or TS_BBURL environment variable)")
	}
	if cfg.GracePeriodSeconds < 0 {
		return fmt.Errorf("graceperiodseconds must not be negative")
	}
	return nil
}
