package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harbormast/internal/config"
	"harbormast/internal/registry"
	"harbormast/internal/registry/harbor"
)

var (
	loginURL      string
	loginUsername string
	loginPassword string
	loginInsecure bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify and save registry connection settings",
	Long: `Login checks the connection against the registry and writes the
settings into the config file, preserving comments and unrelated
sections. The password is stored in plain text; prefer leaving it out
and setting HARBORMAST_REGISTRY_PASSWORD instead.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginURL, "url", "", "Harbor base URL, e.g. https://harbor.example.com")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "account name")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (default HARBORMAST_REGISTRY_PASSWORD)")
	loginCmd.Flags().BoolVar(&loginInsecure, "insecure", false, "skip TLS certificate verification")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	reg := cfg.Registry
	if loginURL != "" {
		reg.URL = loginURL
	}
	if loginUsername != "" {
		reg.Username = loginUsername
	}
	if loginPassword != "" {
		reg.Password = loginPassword
	}
	if cmd.Flags().Changed("insecure") {
		reg.Insecure = loginInsecure
	}

	if err := config.ValidateRegistry(reg); err != nil {
		return err
	}

	client, err := harbor.New(harbor.Options{
		URL:      reg.URL,
		Username: reg.Username,
		Password: reg.Password,
		Insecure: reg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("registry client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	if _, err := client.List(ctx, registry.KindProject, "", "", 1); err != nil {
		return fmt.Errorf("connection check failed: %w", err)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return fmt.Errorf("cannot determine config file location")
	}
	if err := config.SaveRegistry(path, reg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "saved registry settings to %s\n", path)
	return nil
}
