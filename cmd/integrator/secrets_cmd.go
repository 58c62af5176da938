package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"integrator-go/internal/secret"
)

const secretsTimeout = 30 * time.Second

// getSecretsCommand returns the secrets management command
func getSecretsCommand() *cobra.Command {
	secretsCmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage credentials stored in the OS keyring",
		Long:  "Store, list, and delete integration credentials using the operating system's secure keyring (Keychain on macOS, Secret Service on Linux, WinCred on Windows)",
	}

	secretsCmd.AddCommand(getSecretsSetCommand())
	secretsCmd.AddCommand(getSecretsListCommand())
	secretsCmd.AddCommand(getSecretsDeleteCommand())

	return secretsCmd
}

func openCLISecretStore() (secret.Store, error) {
	keyring := secret.NewKeyringStore()
	if !keyring.IsAvailable() {
		return nil, fmt.Errorf("OS keyring is not available on this system")
	}
	return keyring, nil
}

func getSecretsSetCommand() *cobra.Command {
	var (
		category string
		fromEnv  string
	)

	cmd := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Store a credential in the keyring",
		Long:  "Store a credential in the OS keyring. If no value is provided, the value is read from stdin.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			key := args[0]
			var value string

			switch {
			case len(args) >= 2:
				value = args[1]
			case fromEnv != "":
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			default:
				fmt.Print("Enter value: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read value: %w", err)
				}
				value = strings.TrimSpace(line)
			}

			if value == "" {
				return fmt.Errorf("credential value cannot be empty")
			}

			store, err := openCLISecretStore()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), secretsTimeout)
			defer cancel()

			if err := store.Set(ctx, key, value, category); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}

			fmt.Printf("Credential %q stored\n", key)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Integration the credential belongs to")
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the value from the named environment variable")

	return cmd
}

func getSecretsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credential keys (values are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := openCLISecretStore()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), secretsTimeout)
			defer cancel()

			records, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list credentials: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("No credentials stored")
				return nil
			}
			for _, r := range records {
				if r.Category != "" {
					fmt.Printf("%s\t(%s)\n", r.Key, r.Category)
				} else {
					fmt.Println(r.Key)
				}
			}
			return nil
		},
	}
}

func getSecretsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a credential from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openCLISecretStore()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), secretsTimeout)
			defer cancel()

			if err := store.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete credential: %w", err)
			}
			fmt.Printf("Credential %q deleted\n", args[0])
			return nil
		},
	}
}
