package config

import (
	"github.com/relaymesh/relay/internal/relayd/options"
)

// Config is the running configuration structure of the relayd service.
type Config struct {
	*options.Options
}

// CreateConfigFromOptions creates a running configuration instance based
// on the given option set.
func CreateConfigFromOptions(opts *options.Options) (*Config, error) {
	return &Config{opts}, nil
}
