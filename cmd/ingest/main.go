// Command ingest bulk-loads property offers into the listing store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"property-agent/internal/bootstrap"
	"property-agent/internal/domain"
	"property-agent/internal/observability"
	"property-agent/internal/offers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type storeFlags struct {
	paramPrefix string
	vectorURL   string
	logLevel    string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.paramPrefix, "param-prefix", os.Getenv("PARAM_PREFIX"), "SSM parameter prefix holding /vector-token")
	cmd.PersistentFlags().StringVar(&f.vectorURL, "vector-url", os.Getenv("VECTOR_URL"), "Vector index REST URL")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func (f *storeFlags) gateway(ctx context.Context) (*offers.Gateway, error) {
	if f.paramPrefix == "" || f.vectorURL == "" {
		return nil, fmt.Errorf("--param-prefix and --vector-url are required")
	}
	awsCfg, err := bootstrap.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}
	return bootstrap.Offers(awsCfg, f.paramPrefix, f.vectorURL)
}

func rootCmd() *cobra.Command {
	var (
		flags       storeFlags
		batchSize   int
		concurrency int
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load property offers from JSON or YAML files",
		Long: `Load property offers into the listing store.

Each file holds a single offer object or a list of offers. Files ending in
.yaml or .yml are read as YAML, everything else as JSON. Offers without an id
get a generated one.

Examples:
  ingest offers.json
  ingest --batch-size 20 seed/*.yaml
  ingest --dry-run offers.yaml
  ingest list > snapshot.yaml
`,
		Args: cobra.MinimumNArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.Setup(os.Stderr, flags.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var all []domain.Offer
			for _, path := range args {
				list, err := offers.ReadSeedFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				all = append(all, list...)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d offers parsed from %d files\n", len(all), len(args))
				return nil
			}

			gw, err := flags.gateway(ctx)
			if err != nil {
				return err
			}
			created, err := ingest(ctx, gw, all, batchSize, concurrency)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d offers stored\n", created, len(all))
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "Offers per upsert request")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Concurrent upsert requests")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse the files without writing anything")

	cmd.AddCommand(listCmd(&flags))
	return cmd
}

func listCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every stored offer as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := flags.gateway(cmd.Context())
			if err != nil {
				return err
			}
			list, err := gw.List(cmd.Context())
			if err != nil {
				return err
			}
			return offers.EncodeYAML(cmd.OutOrStdout(), list)
		},
	}
}

// ingest creates offers in batches, at most concurrency at a time. Batches
// are independent; after the first failure the remaining batches are skipped.
func ingest(ctx context.Context, gw *offers.Gateway, all []domain.Offer, batchSize, concurrency int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	log := observability.Logger(ctx)

	var created atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(all); start += batchSize {
		end := min(start+batchSize, len(all))
		batch := all[start:end]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out, err := gw.Create(gCtx, batch)
			if err != nil {
				return fmt.Errorf("offers %d-%d: %w", start, end-1, err)
			}
			created.Add(int64(len(out)))
			log.Info("batch stored", "first", start, "count", len(out))
			return nil
		})
	}
	err := g.Wait()
	return int(created.Load()), err
}
