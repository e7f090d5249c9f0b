package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/countrycode"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/router"
	"github.com/trivago/geolocator/internal/transfer"
)

var serveRouterCmd = &cobra.Command{
	Use:   "serve-router",
	Short: "Run the candidate router worker",
	Long:  "Consumes inbound feed records, normalises country codes, registers entities in the transfer table, and fans out geocoder tasks for candidates that aren't already trusted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("router"); err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		countries, err := countrycode.LoadFromFile(cfg.Bootstrap.DataDir + "/country_codes.json")
		if err != nil {
			return err
		}

		store := candidatestore.NewPostgresStore(pool, pool, cfg.Store.GeocodesTable)
		xfer := transfer.NewPostgresStore(pool, cfg.Store.TransferTable)
		taskQueue := queue.NewPostgresQueue[envelope.GeocoderTask](pool, cfg.Queue.GeocoderQueue)
		feedQueue := queue.NewPostgresQueue[envelope.Feed](pool, cfg.Queue.InputQueue)

		r := router.New(store, xfer, taskQueue, countries, cfg.Environment, nil)

		health := &workerHealth{}
		startHealthServer(ctx, "router", health)

		return runWorkerLoop(ctx, "router", func(ctx context.Context) (int, error) {
			messages, err := feedQueue.Receive(ctx, queue.SQSBatchSize)
			if err != nil {
				return 0, err
			}
			for _, msg := range messages {
				if err := r.Route(ctx, msg.Payload); err != nil {
					zap.L().Warn("router: failed to route feed record", zap.Error(err))
					continue
				}
				if err := feedQueue.Ack(ctx, msg.Handle); err != nil {
					zap.L().Warn("router: failed to ack feed message", zap.Error(err))
				}
			}
			health.tick()
			return len(messages), nil
		})
	},
}

func init() { rootCmd.AddCommand(serveRouterCmd) }
