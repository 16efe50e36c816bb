// internal/cli/root.go
package concilium

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/metrics"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	v             = appconfig.NewViper()
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "concilium",
	Short:        "concilium: three-model drafting pipelines over HTTP and the terminal",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := appconfig.LoadDotEnv(); err != nil {
			return err
		}
		if err := appconfig.ReadFile(v, cfgFile); err != nil {
			return err
		}
		cfg, err := appconfig.FromViper(v)
		if err != nil {
			return err
		}
		currentConfig = &cfg

		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(cfg.Debug)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	defer metrics.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().Bool("debug", false, "log full request and response payloads")
	rootCmd.PersistentFlags().Bool("metrics", false, "collect per-backend call metrics")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("mergeBackend", "", "backend slot that consolidates atomic drafts")

	bindFlag("debug")
	bindFlag("metrics")
	bindFlag("logFile")
	bindFlag("mergeBackend")
}

// bindFlag binds a persistent flag to the viper key of the same name. An
// unset flag keeps the config file, environment or default value.
func bindFlag(name string) {
	_ = v.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// ConfigFileUsed reports the config file viper read, if any.
func ConfigFileUsed() string { return v.ConfigFileUsed() }

// DebugEnabled returns true if debug logging is enabled.
func DebugEnabled() bool { return v.GetBool("debug") }

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
