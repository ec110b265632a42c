package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHost      = "0.0.0.0"
	defaultPort      = 8081
	defaultLogLevel  = "info"
	defaultLogOutput = "stdout"
	defaultDataDir   = "./data"
)

// Config holds the Registration Authority's configuration.
type Config struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"loglevel"`
	LogOutput   string `mapstructure:"logoutput"`
	DataDir     string `mapstructure:"datadir"`
	KeystoreDir string `mapstructure:"keystoredir"`
	BBURL       string `mapstructure:"bburl"`
	VSURL       string `mapstructure:"vsurl"`
	TSURL       string `mapstructure:"tsurl"`
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("loglevel", defaultLogLevel)
	v.SetDefault("logoutput", defaultLogOutput)
	v.SetDefault("datadir", defaultDataDir)
	v.SetDefault("keystoredir", defaultDataDir+"/ra-keystore")

	flag.StringP("host", "h", defaultHost, "API host")
	flag.IntP("port", "p", defaultPort, "API port")
	flag.StringP("loglevel", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("logoutput", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDataDir, "directory holding election description files")
	flag.String("keystoredir", defaultDataDir+"/ra-keystore", "directory for the local voter secret-key store")
	flag.String("bburl", "", "Bulletin Board base URL (required)")
	flag.String("vsurl", "", "Voting Server base URL (required)")
	flag.String("tsurl", "", "Tallying Server base URL (required)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "registration-authority\n\nUsage: registration-authority [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available, prefixed with RA_, e.g. RA_BBURL.\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("RA")
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
	if cfg.BBURL == "" || cfg.VSURL == "" || cfg.TSURL == "" {
		return fmt.Errorf("bburl, vsurl and tsurl are all required")
	}
	return nil
}
