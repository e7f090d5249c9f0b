package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/locator"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/transfer"
)

// locatorClaimBatch bounds how many expired transfer registrations one pass
// claims at once.
const locatorClaimBatch = 100

var serveLocatorCmd = &cobra.Command{
	Use:   "serve-locator",
	Short: "Run the locator worker",
	Long:  "Claims transfer-table registrations as they expire, resolves each entity's winning candidate against the locality service, and publishes the enriched geo data record.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("locator"); err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		baseURL := fmt.Sprintf("https://%s.execute-api.%s.amazonaws.com/locality", cfg.Locator.APIID, cfg.Locator.AWSRegion)
		client := locator.NewHTTPClient(baseURL, cfg.Locator.APIKey, &http.Client{Timeout: 10 * time.Second},
			cfg.Locator.AWSKey, cfg.Locator.AWSSecret, cfg.Locator.AWSSession, cfg.Locator.AWSRegion,
			cfg.Locator.BreakerFailureThreshold, cfg.Locator.BreakerResetTimeoutSec)

		store := candidatestore.NewPostgresStore(pool, pool, cfg.Store.GeocodesTable)
		xfer := transfer.NewPostgresStore(pool, cfg.Store.TransferTable)
		output := queue.NewPostgresStream[envelope.CandidateGeoData](pool, cfg.Queue.CandidateGeoDataStream)

		loc := locator.New(store, client, output)

		health := &workerHealth{}
		startHealthServer(ctx, "locator", health)

		return runWorkerLoop(ctx, "locator", func(ctx context.Context) (int, error) {
			keys, err := xfer.ClaimExpired(ctx, locatorClaimBatch)
			if err != nil {
				return 0, err
			}
			for _, key := range keys {
				if err := loc.Locate(ctx, key, cfg.Environment); err != nil {
					zap.L().Warn("locator: failed to locate entity",
						zap.String("entity", key.Composite()), zap.Error(err))
				}
			}
			health.tick()
			return len(keys), nil
		})
	},
}

func init() { rootCmd.AddCommand(serveLocatorCmd) }
