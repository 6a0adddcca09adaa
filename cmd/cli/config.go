package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all upload CLI configuration
type Config struct {
	BaseURL     string            `mapstructure:"base_url"`
	Endpoint    string            `mapstructure:"endpoint"`
	MaxFiles    int               `mapstructure:"max_files"`
	MaxFileSize int64             `mapstructure:"max_file_size"`
	Concurrency int               `mapstructure:"concurrency"`
	Headers     map[string]string `mapstructure:"headers"`
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("DROPKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("dropkit")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.dropkit")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.BaseURL == "" {
		return nil, fmt.Errorf("missing required configuration: base_url (or DROPKIT_BASE_URL)")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "/api/uploads/presign")
	v.SetDefault("max_files", 10)
	v.SetDefault("max_file_size", 50*1024*1024)
	v.SetDefault("concurrency", 3)
}
