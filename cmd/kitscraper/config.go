package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kitscraper/pkg/config"
	"kitscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage kitscraper configuration files.

Configuration is merged from, in priority order:
  - Command line flags (highest)
  - Environment variables, KITSCRAPER_ prefixed (via .env or the shell)
  - Configuration file
  - Default values (lowest)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with all defaults",
	Long: `Create a configuration file populated with every option set to its
default value. The file is written to 'kitscraper.yaml' in the current
directory unless --config names a different path.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration as the other commands would see it, after
merging defaults, the config file, environment variables and global flags.`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file for YAML syntax errors and out-of-range
values without running anything.`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "kitscraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := config.WriteDefault(configPath); err != nil {
		ui.PrintError("Failed to write configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created")
	ui.PrintInfo("Path", configPath)
	fmt.Println("\nEdit the file to point base_url at your photo host, then run:")
	fmt.Println("  kitscraper harvest")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig(nil)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to render configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Effective configuration")
	fmt.Println(string(data))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "kitscraper.yaml"
	}

	if _, err := os.Stat(configPath); err != nil {
		ui.PrintError("Configuration file not found", configPath)
		os.Exit(1)
	}

	if _, err := config.Load(configPath, nil); err != nil {
		ui.PrintError("Configuration is invalid", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Path", configPath)
}
