package apiclient

import (
	"fmt"

	"github.com/papercomputeco/chatmerge/pkg/config"
)

// Resolve builds the Options of a CLI command. The API target comes from
// the flag when it was set on the command line, then from
// CHATMERGE_CLIENT_API_TARGET, then from client.api_target in config.toml.
func Resolve(configDir, flagTarget string, flagSet bool) (Options, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return Options{}, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return Options{}, fmt.Errorf("loading config: %w", err)
	}

	opts, err := LoadOptions(cfg.Client.APITarget)
	if err != nil {
		return Options{}, err
	}

	if flagSet {
		opts.Target = flagTarget
	}
	return opts, nil
}
