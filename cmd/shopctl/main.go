package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/poster-shop/internal/auth"
	"github.com/example/poster-shop/internal/bootstrap"
	"github.com/example/poster-shop/internal/config"
	"github.com/example/poster-shop/internal/domain/product"
	"github.com/example/poster-shop/internal/sweeper"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "shopctl",
		Short:        "Operator tools for the Postro shop",
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCmd(), newHashPasswordCmd(), newExportProductsCmd())
	return root
}

// withServices loads configuration and opens the document store for one command
func withServices(ctx context.Context, fn func(cfg *config.Config, services *bootstrap.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	docs, closeDocs, err := bootstrap.OpenDocuments(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	publisher, closePublisher := bootstrap.OpenPublisher(cfg)
	defer closePublisher()

	return fn(cfg, bootstrap.NewServices(cfg, docs, publisher))
}

func newSweepCmd() *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire carts whose reservation window has passed and restock their items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(cfg *config.Config, services *bootstrap.Services) error {
				s := sweeper.New(services.Carts, cfg.SweepInterval)
				if loop {
					log.Printf("[Sweeper] Sweeping every %s until interrupted", cfg.SweepInterval)
					s.Run(cmd.Context())
					return nil
				}
				n, err := s.SweepExpired(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d cart(s)\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep sweeping every SWEEP_INTERVAL")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func passwordArg(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newExportProductsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-products",
		Short: "Write the catalog with live stock to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(cfg *config.Config, services *bootstrap.Services) error {
				products, err := services.Products.List(cmd.Context())
				if err != nil {
					return err
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := product.WriteSpreadsheet(f, products); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d product(s) to %s\n", len(products), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "products.xlsx", "destination file")
	return cmd
}
