// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/quarrystore/quarry-go/lib/config"
	"github.com/quarrystore/quarry-go/lib/util/cmd"
	"github.com/quarrystore/quarry-go/lib/util/errors"
	"github.com/quarrystore/quarry-go/pkg/engine/boltengine"
	"github.com/quarrystore/quarry-go/pkg/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Context carries what every subcommand needs: the logger and the resolved
// configuration.
type Context struct {
	Logger *zap.Logger
	Config *config.Config
}

// session is one connected pool/container pair, opened per command invocation
// and torn down when it returns.
type session struct {
	rt   *store.Runtime
	pool *store.Pool
	cont *store.Container
}

func (c *Context) open(ctx context.Context) (*session, error) {
	eng := boltengine.New(c.Logger.Named("engine"), c.Config.Store.DataDir)
	rt := store.NewRuntime(c.Logger.Named("store"), eng)
	pool := store.NewPool(c.Logger.Named("store"), rt, c.Config.Store)
	if err := pool.Connect(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	cont, err := store.OpenContainer(c.Logger.Named("store"), pool, c.Config.Store.Container, c.Config.EventQueue)
	if err != nil {
		_ = pool.Disconnect()
		_ = rt.Close()
		return nil, err
	}
	return &session{rt: rt, pool: pool, cont: cont}, nil
}

func (s *session) Close() error {
	return errors.Collect(errors.New("closing session"),
		s.cont.Close(), s.pool.Disconnect(), s.rt.Close())
}

func GetRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "quarryctl",
		Short:        "cli",
		SilenceUsage: true,
	}
	rootCmd.SetOutput(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	ctx := &Context{}

	configFile := rootCmd.PersistentFlags().String("config", "", "quarry toml config file")
	dataDir := rootCmd.PersistentFlags().String("data_dir", "", "override the store data directory")
	pool := rootCmd.PersistentFlags().String("pool", "", "override the pool label")
	container := rootCmd.PersistentFlags().String("container", "", "override the container label")
	logEncoder := rootCmd.PersistentFlags().String("log_encoder", "console", "log in format of console, or json")
	logLevel := rootCmd.PersistentFlags().String("log_level", "warn", "log level")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		logger, _, _, err := cmd.BuildLogger(&config.Log{
			Encoder: *logEncoder,
			LogOnline: config.LogOnline{
				Level: *logLevel,
			},
		})
		if err != nil {
			return err
		}
		cfg := config.NewConfig()
		if *configFile != "" {
			data, err := os.ReadFile(*configFile)
			if err != nil {
				return errors.WithStack(err)
			}
			if err := toml.Unmarshal(data, cfg); err != nil {
				return errors.WithStack(err)
			}
		}
		if *dataDir != "" {
			cfg.Store.DataDir = *dataDir
		}
		if *pool != "" {
			cfg.Store.Pool = *pool
		}
		if *container != "" {
			cfg.Store.Container = *container
		}
		if err := cfg.Check(); err != nil {
			return err
		}
		ctx.Logger = logger.Named("cli")
		ctx.Config = cfg
		return nil
	}

	rootCmd.AddCommand(GetInfoCmd(ctx))
	rootCmd.AddCommand(GetAllocCmd(ctx))
	rootCmd.AddCommand(GetObjectCmd(ctx))
	return rootCmd
}
