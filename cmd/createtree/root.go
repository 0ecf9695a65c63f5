package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"createtree/internal/infra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "createtree",
		Short:         "Image transform and music generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (defaults to $CREATETREE_CONFIG)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newMusicCommand(ctx))
	rootCmd.AddCommand(newTransformCommand(ctx))
	return rootCmd
}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *infra.Config
	configErr  error

	loggerOnce sync.Once
	logger     infra.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*infra.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = infra.LoadConfig(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) log() infra.Logger {
	c.loggerOnce.Do(func() {
		env := "production"
		if cfg, err := c.ensureConfig(); err == nil {
			env = cfg.AppEnv
		}
		c.logger = infra.NewLogger(env)
	})
	return c.logger
}

// shouldSkipConfig lets client-only commands run without a server config.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
