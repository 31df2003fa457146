package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/facereel/internal/utils"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	configForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the resolved configuration to a YAML file",
	Long: `Writes the configuration in effect (defaults, then the config file, then
FACEREEL_* environment variables) so it can be edited and passed back with --config.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeConfig(configPath, configForce); err != nil {
			utils.Die("Failed to write config", err, nil)
		}
		fmt.Fprintf(os.Stderr, "💾 Config written to %s\n", configPath)
	},
}

func init() {
	configCmd.Flags().StringVarP(&configPath, "output", "o", "facereel.yaml", "Where to write the config")
	configCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	rootCmd.AddCommand(configCmd)
}

func writeConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	// The connection string can carry a password, so it stays out of the file
	out := *Cfg
	out.DatabaseURL = ""
	return out.Save(path)
}
