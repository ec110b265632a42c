package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHost                  = "0.0.0.0"
	defaultPort                  = 8082
	defaultLogLevel              = "info"
	defaultLogOutput             = "stdout"
	defaultDataDir               = "./data"
	defaultVoteAmountMin         = 10
	defaultVoteAmountMax         = 15
	defaultMinIntervalSeconds    = 5
	defaultFinalObfuscationDelay = 60
)

// Config holds the Voting Server's configuration.
type Config struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	LogLevel              string `mapstructure:"loglevel"`
	LogOutput             string `mapstructure:"logoutput"`
	DataDir               string `mapstructure:"datadir"`
	KVDir                 string `mapstructure:"kvdir"`
	KeyPath               string `mapstructure:"keypath"`
	BBURL                 string `mapstructure:"bburl"`
	VoteAmountMin         int    `mapstructure:"voteamountmin"`
	VoteAmountMax         int    `mapstructure:"voteamountmax"`
	MinIntervalSeconds    int    `mapstructure:"minintervalseconds"`
	FinalObfuscationDelay int    `mapstructure:"finalobfuscationdelay"`
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("loglevel", defaultLogLevel)
	v.SetDefault("logoutput", defaultLogOutput)
	v.SetDefault("datadir", defaultDataDir)
	v.SetDefault("kvdir", defaultDataDir+"/vs-store")
	v.SetDefault("keypath", defaultDataDir+"/vs-key.json")
	v.SetDefault("voteamountmin", defaultVoteAmountMin)
	v.SetDefault("voteamountmax", defaultVoteAmountMax)
	v.SetDefault("minintervalseconds", defaultMinIntervalSeconds)
	v.SetDefault("finalobfuscationdelay", defaultFinalObfuscationDelay)

	flag.StringP("host", "h", defaultHost, "API host")
	flag.IntP("port", "p", defaultPort, "API port")
	flag.StringP("loglevel", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("logoutput", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDataDir, "base directory for local state")
	flag.String("kvdir", defaultDataDir+"/vs-store", "directory for the local schedule/pending-vote store")
	flag.String("keypath", defaultDataDir+"/vs-key.json", "path to VS's persisted secret-key file")
	flag.String("bburl", "", "Bulletin Board base URL (required)")
	flag.Int("voteamountmin", defaultVoteAmountMin, "minimum drawn vote count per voter; the mean inter-slot interval is the election duration divided by it")
	flag.Int("voteamountmax", defaultVoteAmountMax, "maximum drawn vote count per voter; the mean inter-slot interval is the election duration divided by it")
	flag.Int("minintervalseconds", defaultMinIntervalSeconds, "smallest accepted inter-slot interval, in seconds")
	flag.Int("finalobfuscationdelay", defaultFinalObfuscationDelay, "seconds after election end at which the closing obfuscation slot is placed")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "voting-server\n\nUsage: voting-server [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available, prefixed with VS_, e.g. VS_BBURL.\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix("VS")
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
		return fmt.Errorf("bburl is required (use --bburl flag or VS_BBURL environment variable)")
	}
	if cfg.VoteAmountMin <= 0 || cfg.VoteAmountMax < cfg.VoteAmountMin {
		return fmt.Errorf("voteamountmin/voteamountmax must be positive and voteamountmax >= voteamountmin")
	}
	return nil
}
