// Package config loads the engine's YAML configuration via viper,
// falling back to defaults set before the file is read so a missing or
// partial config file still produces a usable engine.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// StorageConfig controls the on-disk layout and buffer pool sizing.
type StorageConfig struct {
	DataDir            string `mapstructure:"data_dir"`
	PageSize           int    `mapstructure:"page_size"`
	BufferPoolCapacity int    `mapstructure:"buffer_pool_capacity"`
}

// EngineConfig controls query-execution behavior.
type EngineConfig struct {
	OptimizerEnabled       bool `mapstructure:"optimizer_enabled"`
	MaxOptimizerIterations int  `mapstructure:"max_optimizer_iterations"`
}

// Config is the root configuration tree. No Server/Port fields: this
// engine is single-process and in-process only, not a network service.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

func defaults() Config {
	return Config{
		Storage: StorageConfig{
			DataDir:            "./data",
			PageSize:           4096,
			BufferPoolCapacity: 128,
		},
		Engine: EngineConfig{
			OptimizerEnabled:       true,
			MaxOptimizerIterations: 10,
		},
	}
}

// Load reads path as YAML, merging onto the defaults. A missing file is
// not an error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	d := defaults()
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.page_size", d.Storage.PageSize)
	v.SetDefault("storage.buffer_pool_capacity", d.Storage.BufferPoolCapacity)
	v.SetDefault("engine.optimizer_enabled", d.Engine.OptimizerEnabled)
	v.SetDefault("engine.max_optimizer_iterations", d.Engine.MaxOptimizerIterations)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
