package relayd

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/relaymesh/relay/internal/relayd/config"
	"github.com/relaymesh/relay/pkg/logger"
)

// Run starts the relayd API server and blocks until shutdown.
func Run(cfg *config.Config) error {
	server, err := createAPIServer(cfg)
	if err != nil {
		return err
	}

	// Hot-reload the idle thresholds when the config file changes; other
	// knobs require a restart.
	viper.OnConfigChange(func(in fsnotify.Event) {
		logger.Info("[Relayd] config file changed: %s", in.Name)
		server.agentsModule.Sweeper.UpdateThresholds(
			viper.GetDuration("sweep.session_idle_timeout"),
			viper.GetDuration("sweep.runner_idle_timeout"),
			viper.GetDuration("sweep.agent_idle_timeout"),
		)
	})
	viper.WatchConfig()

	return server.PrepareRun().Run()
}
