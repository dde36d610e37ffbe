package cmd

import (
	"fmt"

	"github.com/productstudio/studio/internal/db/models"
	"github.com/productstudio/studio/internal/db/repository"
	"github.com/productstudio/studio/internal/utils/hashutil"
	"github.com/productstudio/studio/internal/utils/randutil"
	"github.com/spf13/cobra"
)

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage Studio API keys",
}

func init() {
	setupAPIKeyCmd(apiKeyCmd)
}

func withAPIKeyRepo(fn func(cmd *cobra.Command, args []string, repo repository.IAPIKeyRepository) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		driver, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer driver.Close()

		return fn(cmd, args, repository.NewAPIKeyRepository(driver.GetDB()))
	}
}

func setupAPIKeyCmd(cmd *cobra.Command) {
	newAPIKeyCmd := &cobra.Command{
		Use:   "new",
		Short: "Creates a new API key",
		Args:  cobra.NoArgs,
		RunE: withAPIKeyRepo(func(cmd *cobra.Command, args []string, repo repository.IAPIKeyRepository) error {
			key, err := randutil.NewAPIKey()
			if err != nil {
				return err
			}

			apiKey := models.NewAPIKey(hashutil.Sha3256Hash([]byte(key)), randutil.MaskAPIKey(key))
			if _, err := repo.Create(cmd.Context(), apiKey); err != nil {
				return err
			}

			fmt.Printf("API key created: %s\n", key)
			return nil
		}),
	}

	revokeAPIKeyCmd := &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: withAPIKeyRepo(func(cmd *cobra.Command, args []string, repo repository.IAPIKeyRepository) error {
			key := args[0]
			if err := repo.RevokeAPIKeyWithHash(cmd.Context(), hashutil.Sha3256Hash([]byte(key))); err != nil {
				return err
			}

			fmt.Printf("API key revoked: %s\n", randutil.MaskAPIKey(key))
			return nil
		}),
	}

	listAPIKeysCmd := &cobra.Command{
		Use:   "list",
		Short: "List all API keys",
		Args:  cobra.NoArgs,
		RunE: withAPIKeyRepo(func(cmd *cobra.Command, args []string, repo repository.IAPIKeyRepository) error {
			apiKeys, err := repo.ListAPIKeys(cmd.Context())
			if err != nil {
				return err
			}

			if len(apiKeys) == 0 {
				fmt.Println("No API keys found")
				return nil
			}

			fmt.Println("API keys:")
			for _, apiKey := range apiKeys {
				fmt.Printf("%s (Revoked: %t)\n", apiKey.KeyMask, apiKey.IsRevoked)
			}

			return nil
		}),
	}

	cmd.AddCommand(newAPIKeyCmd, revokeAPIKeyCmd, listAPIKeysCmd)
}
