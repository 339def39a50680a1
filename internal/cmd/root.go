package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "autonomy",
	Short: "Multi-agent decision-cycle orchestrator",
	Long: `Autonomy runs a roster of CLI agents through structured decision
cycles: proposals are collected from every agent, the leader synthesizes
one collective decision, task conflicts are rebalanced, and the team
discusses the plan to consensus. Unsafe content and exhausted stages
escalate to a human operator.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/autonomy/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/autonomy")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AUTONOMY")
	// Replace dots with underscores for nested keys in env vars
	// e.g., AUTONOMY_SYNTHESIS_MAX_RETRIES for synthesis.max_retries
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
