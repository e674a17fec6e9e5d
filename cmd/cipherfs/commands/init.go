package commands

import (
	"fmt"

	"github.com/marmos91/cipherfs/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample cipherfs configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/cipherfs/config.yaml.
Use --config to specify a custom path. The file never contains a master key.

Examples:
  # Initialize with default location
  cipherfs init

  # Initialize with custom path
  cipherfs init --config /etc/cipherfs/config.yaml

  # Force overwrite existing config
  cipherfs init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit the configuration file to choose a store")
	fmt.Fprintln(out, "  2. Provide the master key through the environment:")
	fmt.Fprintln(out, "       export CIPHERFS_KEY_PASSPHRASE=... CIPHERFS_KEY_SALT=...")
	fmt.Fprintln(out, "  3. Run: cipherfs serve")

	return nil
}
