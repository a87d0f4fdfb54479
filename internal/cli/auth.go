package cli

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"parley/internal/config"
	"parley/pkg/modeluri"
)

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage provider API keys for Parley.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Configure a provider API key",
		Long: `Store the API key for the configured model provider.

The key is stored in your Parley configuration file and sent
with every request to the provider.`,
		Example: `  # Interactive login (recommended)
  parley auth login

  # Provide the key directly
  parley auth login --token sk-xxxxx

  # Store a separate key for the summarizer model
  parley auth login --summarizer`,
		RunE: runAuthLogin,
	}

	cmd.Flags().StringP("token", "t", "", "API key (if not provided, will prompt)")
	cmd.Flags().Bool("summarizer", false, "store the key for the summarizer model instead")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Long:  `Remove the stored API keys from Parley configuration.`,
		RunE:  runAuthLogout,
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check authentication status",
		Long:  `Display the current authentication status.`,
		RunE:  runAuthStatus,
	}
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Logger

	forSummarizer, _ := cmd.Flags().GetBool("summarizer")

	target := cfg.Model.URI
	if forSummarizer {
		target = cfg.Summarizer.URI
		if target == "" {
			target = cfg.Model.URI
		}
	}

	token, _ := cmd.Flags().GetString("token")

	if token == "" {
		fmt.Println("Parley Provider Authentication")
		fmt.Println("------------------------------")
		fmt.Println("")
		fmt.Printf("Configured model: %s\n", target)
		fmt.Println("")
		fmt.Print("Enter your API key: ")

		// Read the key with hidden input
		tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		token = strings.TrimSpace(string(tokenBytes))
		fmt.Println() // New line after hidden input
	}

	if token == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if forSummarizer {
		cfg.Summarizer.APIKey = token
	} else {
		cfg.Model.APIKey = token
	}

	configPath := cliCtx.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("")
	fmt.Println("✓ API key saved successfully!")
	fmt.Println("")
	fmt.Printf("Configuration saved to: %s\n", configPath)

	log.Info().Msg("Provider API key configured")

	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Logger

	if cfg.Model.APIKey == "" && cfg.Summarizer.APIKey == "" {
		fmt.Println("No API key configured.")
		return nil
	}

	cfg.Model.APIKey = ""
	cfg.Summarizer.APIKey = ""

	configPath := cliCtx.ConfigPath
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("✓ API keys removed successfully!")
	log.Info().Msg("Provider API keys cleared")

	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config

	fmt.Println("Authentication Status")
	fmt.Println("--------------------")
	fmt.Println("")

	providerName := cfg.Model.URI
	if uri, err := modeluri.Parse(cfg.Model.URI); err == nil {
		providerName = uri.Provider
	}

	if cfg.Model.APIKey == "" {
		fmt.Printf("Model (%s): ❌ no API key\n", providerName)
		fmt.Println("")
		fmt.Println("Run 'parley auth login' to configure authentication.")
	} else {
		fmt.Printf("Model (%s): ✓ key configured (%s)\n", providerName, maskToken(cfg.Model.APIKey))
	}

	if cfg.Summarizer.APIKey != "" {
		fmt.Printf("Summarizer: ✓ key configured (%s)\n", maskToken(cfg.Summarizer.APIKey))
	}

	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
