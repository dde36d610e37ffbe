package cmd

import (
	"fmt"

	"github.com/productstudio/studio/internal/config"
	"github.com/productstudio/studio/internal/services/filestorage"
	"github.com/productstudio/studio/internal/services/products"
	"github.com/productstudio/studio/pkg/logger"
	"github.com/spf13/cobra"
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
}

func init() {
	setupProductCmd(productCmd)
}

func withProducts(fn func(cmd *cobra.Command, args []string, service *products.Service) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()

		driver, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer driver.Close()

		storage, err := filestorage.NewFileStorage(cfg)
		if err != nil {
			return err
		}

		log, err := logger.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		return fn(cmd, args, products.NewService(driver.GetDB(), storage, log))
	}
}

func setupProductCmd(cmd *cobra.Command) {
	createCmd := &cobra.Command{
		Use:   "create <slug> <name>",
		Short: "Create a product",
		Args:  cobra.ExactArgs(2),
		RunE: withProducts(func(cmd *cobra.Command, args []string, service *products.Service) error {
			flags := cmd.Flags()
			description, _ := flags.GetString("description")
			category, _ := flags.GetString("category")
			tags, _ := flags.GetStringSlice("tags")

			product, err := service.Create(cmd.Context(), products.CreateParams{
				Slug:        args[0],
				Name:        args[1],
				Description: description,
				Category:    category,
				Tags:        tags,
			})
			if err != nil {
				return err
			}

			fmt.Printf("product created: %s (%s)\n", product.ID, product.Slug)
			return nil
		}),
	}
	createCmd.Flags().String("description", "", "Product description")
	createCmd.Flags().String("category", "", "Product category")
	createCmd.Flags().StringSlice("tags", nil, "Comma separated tags")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active products",
		Args:  cobra.NoArgs,
		RunE: withProducts(func(cmd *cobra.Command, args []string, service *products.Service) error {
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")

			list, err := service.List(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Println("No products found")
				return nil
			}

			for _, product := range list {
				fmt.Printf("%s  %-24s %s\n", product.ID, product.Slug, product.Name)
			}
			return nil
		}),
	}
	listCmd.Flags().Int("skip", 0, "Number of products to skip")
	listCmd.Flags().Int("limit", products.DefaultListLimit, "Maximum number of products to list")

	cmd.AddCommand(createCmd, listCmd)
}
