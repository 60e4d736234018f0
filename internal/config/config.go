// Package config loads the storage core's tunables from a YAML file
// using viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// DBConfig controls every subsystem's knobs: page size and buffer-pool
// capacity, WAL directory and rolling/back-pressure limits, double-write
// staging threshold, and the transaction-kit/log-handler implementation
// selectors.
type DBConfig struct {
	Storage struct {
		Dir      string `mapstructure:"dir"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`

	BufferPool struct {
		FramesPerFile int `mapstructure:"frames_per_file"`
	} `mapstructure:"buffer_pool"`

	DoubleWrite struct {
		MaxStagedPages int `mapstructure:"max_staged_pages"`
	} `mapstructure:"double_write"`

	WAL struct {
		Dir               string `mapstructure:"dir"`
		MaxEntriesPerFile int    `mapstructure:"max_entries_per_file"`
		MaxBufferedBytes  int    `mapstructure:"max_buffered_bytes"`
	} `mapstructure:"wal"`

	TrxKitName     string `mapstructure:"trx_kit_name"`     // "vacuous" | "mvcc"
	LogHandlerName string `mapstructure:"log_handler_name"` // "vacuous" | "disk"
}

// Default returns the configuration used when no file is supplied: 8 KiB
// pages, 10000 log entries per file, and a 32 MiB flusher back-pressure
// cap. The 4 MiB per-entry cap is wal.MaxEntrySize, not a config setting.
func Default() *DBConfig {
	cfg := &DBConfig{}
	cfg.Storage.Dir = "data"
	cfg.Storage.PageSize = 8192
	cfg.BufferPool.FramesPerFile = 128
	cfg.DoubleWrite.MaxStagedPages = 16
	cfg.WAL.Dir = "wal"
	cfg.WAL.MaxEntriesPerFile = 10000
	cfg.WAL.MaxBufferedBytes = 32 * 1024 * 1024
	cfg.TrxKitName = "mvcc"
	cfg.LogHandlerName = "disk"
	return cfg
}

// Load reads a YAML config file and overlays it on top of Default().
func Load(path string) (*DBConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}
