// internal/cli/show_config.go
package concilium

import (
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/mwiater/concilium/internal/appconfig"
)

var dumpConfig bool

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file, .env and environment are loaded properly and overridden by flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		if dumpConfig {
			_, err := pp.Fprintln(cmd.OutOrStdout(), redacted(*cfg))
			return err
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), *cfg)
		return nil
	},
}

// redacted returns a copy of cfg with credentials masked.
func redacted(cfg appconfig.Config) appconfig.Config {
	backends := make(map[string]appconfig.Backend, len(cfg.Backends))
	for slot, b := range cfg.Backends {
		b.APIKey = appconfig.MaskSecret(b.APIKey)
		backends[slot] = b
	}
	cfg.Backends = backends
	if cfg.Store.RedisPassword != "" {
		cfg.Store.RedisPassword = appconfig.MaskSecret(cfg.Store.RedisPassword)
	}
	return cfg
}

func init() {
	showConfigCmd.Flags().BoolVar(&dumpConfig, "dump", false, "pretty-print the resolved configuration struct")
	showCmd.AddCommand(showConfigCmd)
}
