// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/quarrystore/quarry-go/lib/util/errors"
)

var (
	ErrInvalidConfigValue = errors.New("invalid config value")
)

type Config struct {
	Workdir    string     `yaml:"workdir,omitempty" toml:"workdir,omitempty" json:"workdir,omitempty"`
	Store      Store      `yaml:"store,omitempty" toml:"store,omitempty" json:"store,omitempty"`
	EventQueue EventQueue `yaml:"event-queue,omitempty" toml:"event-queue,omitempty" json:"event-queue,omitempty"`
	Log        Log        `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
}

type Store struct {
	// DataDir is the directory holding pool files of the embedded engine.
	DataDir   string `yaml:"data-dir,omitempty" toml:"data-dir,omitempty" json:"data-dir,omitempty"`
	Pool      string `yaml:"pool,omitempty" toml:"pool,omitempty" json:"pool,omitempty"`
	Container string `yaml:"container,omitempty" toml:"container,omitempty" json:"container,omitempty"`
	// ConnectRetryInterval and ConnectMaxRetries bound the backoff when a
	// pool connect hits a transient engine error.
	ConnectRetryInterval time.Duration `yaml:"connect-retry-interval,omitempty" toml:"connect-retry-interval,omitempty" json:"connect-retry-interval,omitempty"`
	ConnectMaxRetries    uint64        `yaml:"connect-max-retries,omitempty" toml:"connect-max-retries,omitempty" json:"connect-max-retries,omitempty"`
}

type EventQueue struct {
	// PollInterval is the longest a poller goroutine blocks in one poll
	// before it rechecks for shutdown.
	PollInterval time.Duration `yaml:"poll-interval,omitempty" toml:"poll-interval,omitempty" json:"poll-interval,omitempty"`
	// PollBatch is the most completions reaped by one poll.
	PollBatch int `yaml:"poll-batch,omitempty" toml:"poll-batch,omitempty" json:"poll-batch,omitempty"`
}

type LogOnline struct {
	Level   string  `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty"`
	LogFile LogFile `yaml:"log-file,omitempty" toml:"log-file,omitempty" json:"log-file,omitempty"`
}

type Log struct {
	Encoder   string `yaml:"encoder,omitempty" toml:"encoder,omitempty" json:"encoder,omitempty"`
	LogOnline `yaml:",inline" toml:",inline" json:",inline"`
}

type LogFile struct {
	Filename   string `yaml:"filename,omitempty" toml:"filename,omitempty" json:"filename,omitempty"`
	MaxSize    int    `yaml:"max-size,omitempty" toml:"max-size,omitempty" json:"max-size,omitempty"`
	MaxDays    int    `yaml:"max-days,omitempty" toml:"max-days,omitempty" json:"max-days,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" toml:"max-backups,omitempty" json:"max-backups,omitempty"`
}

func NewConfig() *Config {
	var cfg Config

	cfg.Store.Pool = "default"
	cfg.Store.Container = "default"
	cfg.Store.ConnectRetryInterval = 500 * time.Millisecond
	cfg.Store.ConnectMaxRetries = 3

	cfg.EventQueue.PollInterval = 50 * time.Millisecond
	cfg.EventQueue.PollBatch = 10

	cfg.Log.Level = "info"
	cfg.Log.Encoder = "console"
	cfg.Log.LogFile.MaxSize = 300
	cfg.Log.LogFile.MaxDays = 3
	cfg.Log.LogFile.MaxBackups = 3

	return &cfg
}

func (cfg *Config) Clone() *Config {
	newCfg := *cfg
	return &newCfg
}

func (cfg *Config) Check() error {
	if cfg.Workdir == "" {
		d, err := os.Getwd()
		if err != nil {
			return errors.WithStack(err)
		}
		cfg.Workdir = filepath.Clean(filepath.Join(d, "work"))
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = filepath.Join(cfg.Workdir, "data")
	}

	if cfg.EventQueue.PollInterval < time.Millisecond || cfg.EventQueue.PollInterval > time.Second {
		return errors.Wrapf(ErrInvalidConfigValue, "poll-interval must be between 1ms and 1s")
	}
	if cfg.EventQueue.PollBatch < 1 || cfg.EventQueue.PollBatch > 1024 {
		return errors.Wrapf(ErrInvalidConfigValue, "poll-batch must be between 1 and 1024")
	}

	return nil
}

func (cfg *Config) ToBytes() ([]byte, error) {
	b := new(bytes.Buffer)
	err := toml.NewEncoder(b).Encode(cfg)
	return b.Bytes(), errors.WithStack(err)
}
