package main

import (
	"errors"
	"fmt"
	"os"

	"secwaf/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Problems {
				fmt.Fprintln(os.Stderr, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "wafeval",
		Short:        "Evaluate HTTP transactions against SecRule rule sets",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "loglevel", "", "Overrides the log level of the config. Can be one of: debug, info, warn, error, fatal, panic.")

	root.AddCommand(newEvalCmd(opts))
	root.AddCommand(newRulesCmd(opts))
	root.AddCommand(newValidateCmd(opts))

	return root
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(opts); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return err
		},
	}
}

func loadConfig(opts *rootOptions) (*config.Main, error) {
	if opts.configPath == "" {
		return nil, errors.New("config path is required")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
