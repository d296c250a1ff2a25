package apiclient

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/config"
)

// Command binds the --api-target flag to a cobra command and builds the
// Client when the command runs.
type Command struct {
	target string

	// Client is set by Connect.
	Client *Client
}

// AddFlags registers --api-target on cmd.
func (c *Command) AddFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &c.target)
}

// Connect resolves the API target and builds the Client. It is meant to
// be used as a PreRunE.
func (c *Command) Connect(cmd *cobra.Command, _ []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	flagSet := cmd.Flags().Changed(config.ClientFlags[config.FlagAPITarget].Name)

	opts, err := Resolve(configDir, c.target, flagSet)
	if err != nil {
		return err
	}

	c.Client, err = New(opts)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}
	return nil
}
