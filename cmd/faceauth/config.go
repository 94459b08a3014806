package main

import (
	"fmt"
	"io"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/faceauth/pkg/config"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConfig(os.Stdout, cfg, mustGetString(cmd, "format"))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("faceauth v%s\n", version)
	},
}

func init() {
	configCmd.Flags().String("format", "yaml", "Output format: yaml or toml")
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// printConfig writes c with secrets masked.
func printConfig(w io.Writer, c *config.Config, format string) error {
	masked := *c
	if masked.Session.Redis.Password != "" {
		masked.Session.Redis.Password = redacted
	}
	if masked.Dev.JWTSecret != "" {
		masked.Dev.JWTSecret = redacted
	}

	var (
		out []byte
		err error
	)
	switch format {
	case "yaml", "":
		out, err = yaml.Marshal(&masked)
	case "toml":
		out, err = toml.Marshal(&masked)
	default:
		return fmt.Errorf("unsupported format: %s (must be yaml or toml)", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
