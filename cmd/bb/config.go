package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHost     = "0.0.0.0"
	defaultPort     = 8080
	defaultLogLevel = "info"
	defaultLogOutput = "stdout"
)

// Config holds the Bulletin Board's configuration.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"loglevel"`
	LogOutput string `mapstructure:"logoutput"`
	DSN      string `mapstructure:"dsn"`
	VSURL    string `mapstructure:"vsurl"`
	RAURL    string `mapstructure:"raurl"`
	TSURL    string `mapstructure:"tsurl"`
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("loglevel", defaultLogLevel)
	v.SetDefault("logoutput", defaultLogOutput)

	flag.StringP("host", "h", defaultHost, "API host")
	flag.IntP("port", "p", defaultPort, "API port")
	flag.StringP("loglevel", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("logoutput", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.String("dsn", "", "Postgres data source name (required)")
	flag.String("vsurl", "", "Voting Server base URL")
	flag.String("raurl", "", "Registration Authority base URL")
	flag.String("tsurl", "", "Tallying Server base URL")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "bulletin-board\n\nUsage: bulletin-board [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available, prefixed with BB_, e.g. BB_DSN.\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("BB")
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
	if cfg.DSN == "" {
		return fmt.Errorf("dsn is required (use --dsn flag or BB_DSN environment variable)")
	}
	return nil
}
