package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "facectl",
	Short: "Administer facegate enrollment records",
	Long: `facectl enrolls identities, verifies faces against them and manages the
record store directly, using the same configuration as the facegate services.

Images can be read from files, or captured from the configured camera when
no file is given.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (defaults plus FACEGATE_* environment when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
