package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/face-groups/internal/config"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "face-groups",
	Short: "Group images by the person they show",
	Long: `Face Groups detects a face in every image of a batch, computes a face
descriptor for it and partitions the images into groups that show the
same person. It runs as an HTTP service or as a one-shot CLI command.`,
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
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"YAML config file (defaults to $"+config.FileEnv+")")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig loads the configuration, preferring the --config flag over the
// environment.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv(config.FileEnv)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
