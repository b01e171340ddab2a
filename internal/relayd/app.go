package relayd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaymesh/relay/internal/relayd/config"
	"github.com/relaymesh/relay/internal/relayd/options"
	"github.com/relaymesh/relay/pkg/logger"
)

// NewApp builds the relayd root command: pflag option groups bound
// through viper (flags > env > config file > defaults).
func NewApp(basename string) *cobra.Command {
	opts := options.NewOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:   basename,
		Short: "The relay multi-agent execution daemon",
		Long: heredoc.Doc(`
			relayd coordinates pooled agents, runners, and engine sessions,
			and serves the task execution REST API with live streaming and
			tool approvals.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, configFile, opts); err != nil {
				return err
			}
			if errs := opts.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %v", errs)
			}

			if err := logger.InitLog(opts.Log.Path); err != nil {
				return err
			}
			defer logger.FlushLog()
			logger.SetLevel(opts.Log.Level)
			logger.Info("[Relayd] starting with config: %s", opts.String())

			cfg, err := config.CreateConfigFromOptions(opts)
			if err != nil {
				return err
			}
			return Run(cfg)
		},
	}

	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path of the relayd config file.")

	return cmd
}

// loadConfig merges the config file and RELAY_* env vars into the
// option set underneath explicit flags.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.Options) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("relayd")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/relay")
	}
	viper.SetEnvPrefix("RELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return viper.Unmarshal(opts)
}
