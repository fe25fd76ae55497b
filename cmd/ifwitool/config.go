package main

import (
	"errors"
	"fmt"
	"github.com/davejbax/go-ifwi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the settings that can come from a config file or the environment, as well as flags
type Config struct {
	PrimaryOffsets []uint32 `mapstructure:"primary_offsets"`
	LogLevel       string   `mapstructure:"log_level"`
}

// loadConfig reads ifwitool.yaml from the usual places (or configFile, if given), with IFWI_* environment variables
// taking precedence. A missing config file is not an error.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ifwitool")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ifwitool")
		v.AddConfigPath("/etc/ifwitool")
	}

	v.SetDefault("primary_offsets", ifwi.DefaultPrimaryOffsets)
	v.SetDefault("log_level", logrus.InfoLevel.String())

	v.SetEnvPrefix("IFWI")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(config.PrimaryOffsets) == 0 {
		return nil, errors.New("config must give at least one primary BPDT offset")
	}

	return &config, nil
}
