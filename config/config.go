// Package config loads the tunables spec §4.4/§4.5/§4.8 name explicitly
// (window size, retry/rotation thresholds, request lifetime, on-disk
// roots, whether to keep seeding after a download completes) from a config
// file, environment, or built-in defaults, grounded on the teacher's
// jpillora-cloud-torrent-style viper.InitConf pattern.
package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/Eric-lightning/nTorrent/manager"
)

// Config is the on-disk/env-configurable shape; Manager() converts it to
// manager.Config.
type Config struct {
	AppdataPath       string  `mapstructure:"AppdataPath"`
	DataPath          string  `mapstructure:"DataPath"`
	WindowSize        int     `mapstructure:"WindowSize"`
	MaxNumOfRetries   int     `mapstructure:"MaxNumOfRetries"`
	SortingInterval   int     `mapstructure:"SortingInterval"`
	LifetimeSeconds   float64 `mapstructure:"LifetimeSeconds"`
	SeedEnabled       bool    `mapstructure:"SeedEnabled"`
	AliveProbeSeconds float64 `mapstructure:"AliveProbeSeconds"`
}

// Load reads configFile (if non-empty and present), falling back to
// defaults for anything unset. Values can also be overridden through
// environment variables prefixed NTORRENT_ (e.g. NTORRENT_WINDOWSIZE).
func Load(configFile string) (*Config, error) {
	viper.SetDefault("AppdataPath", "./appdata")
	viper.SetDefault("DataPath", "./data")
	viper.SetDefault("WindowSize", 8)
	viper.SetDefault("MaxNumOfRetries", 3)
	viper.SetDefault("SortingInterval", 20)
	viper.SetDefault("LifetimeSeconds", 2.0)
	viper.SetDefault("SeedEnabled", true)
	viper.SetDefault("AliveProbeSeconds", 30.0)

	viper.SetEnvPrefix("NTORRENT")
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Manager converts the loaded configuration into manager.Config.
func (c *Config) Manager() manager.Config {
	return manager.Config{
		AppdataPath:       c.AppdataPath,
		DataPath:          c.DataPath,
		WindowSize:        c.WindowSize,
		MaxNumOfRetries:   c.MaxNumOfRetries,
		SortingInterval:   c.SortingInterval,
		LifetimeSeconds:   c.LifetimeSeconds,
		SeedEnabled:       c.SeedEnabled,
		AliveProbeSeconds: c.AliveProbeSeconds,
	}
}
