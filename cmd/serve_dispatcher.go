package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/deadletter"
	"github.com/trivago/geolocator/internal/dispatcher"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/keyvault"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/resilience"
	"github.com/trivago/geolocator/pkg/geocode"
)

// googleFamily are the providers whose API does not distinguish per-second
// throttling from daily exhaustion, so the dispatcher gives them a single
// retry attempt before treating a rate limit as quota exhaustion.
var googleFamily = map[string]bool{
	model.ProviderGoogle:       true,
	model.ProviderGooglePlaces: true,
}

var serveDispatcherCmd = &cobra.Command{
	Use:   "serve-dispatcher",
	Short: "Run the geocoder dispatcher worker",
	Long:  "Consumes geocoder tasks, calls the targeted provider adapter with retry, key rotation, and quota tracking, and writes the resulting candidate row.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("dispatcher"); err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		keys, err := loadAPIKeys(cfg.Geocoder.APIKeysParam)
		if err != nil {
			return err
		}
		vault := keyvault.NewVault(keys)
		quota := keyvault.NewQuotaTracker()

		limiters := make(map[string]*rate.Limiter, len(model.ExternalProviders))
		for _, p := range model.ExternalProviders {
			limiters[p] = rate.NewLimiter(rate.Limit(5), 1)
		}
		providers := geocode.NewRegistry(http.DefaultClient, limiters)

		standardProviders := make(map[string]geocode.Provider)
		googleProviders := make(map[string]geocode.Provider)
		for name, p := range providers {
			if googleFamily[name] {
				googleProviders[name] = p
			} else {
				standardProviders[name] = p
			}
		}

		retryCfg := dispatcher.DefaultConfig()
		if cfg.Geocoder.MaxRetries > 0 {
			retryCfg.MaxRetries = cfg.Geocoder.MaxRetries
		}
		standard := dispatcher.New(standardProviders, vault, quota, retryCfg)
		google := dispatcher.New(googleProviders, vault, quota, dispatcher.Config{
			MaxRetries:  1,
			BaseBackoff: retryCfg.BaseBackoff,
			MaxBackoff:  retryCfg.MaxBackoff,
		})

		store := candidatestore.NewPostgresStore(pool, pool, cfg.Store.GeocodesTable)
		tasks := queue.NewPostgresQueue[envelope.GeocoderTask](pool, cfg.Queue.GeocoderQueue)
		dlq := deadletter.NewPostgresStore(pool, cfg.Store.DeadLetterTable)

		health := &workerHealth{}
		startHealthServer(ctx, "dispatcher", health)

		return runWorkerLoop(ctx, "dispatcher", func(ctx context.Context) (int, error) {
			messages, err := tasks.Receive(ctx, queue.SQSBatchSize)
			if err != nil {
				return 0, err
			}
			for _, msg := range messages {
				task := msg.Payload
				d := standard
				if googleFamily[task.Provider] {
					d = google
				}

				candidate, err := d.Dispatch(ctx, task.Provider, dispatcher.Task{
					Key: task.Key, BatchID: task.BatchID, Address: toGeocodeAddress(task.Address), Guess: toGeocodeGuess(task.Address),
				})
				if err != nil {
					status := dispatchStatus(err)
					logStatus := zap.L().Warn
					if status == "NO RESULTS" {
						logStatus = zap.L().Info
					}
					logStatus("dispatcher: status",
						zap.String("status", status), zap.Int("status_code", statusCode(status)),
						zap.Int64("entity_id", task.Key.EntityID), zap.String("entity_type", task.Key.EntityType),
						zap.String("provider", task.Provider), zap.String("batch_id", task.BatchID),
						zap.Error(err))
					if status == "RESCHEDULE" || status == "QUOTA EXHAUSTED" {
						// Leave the message unacked; it redelivers once its
						// visibility window lapses, by which time the provider
						// may be re-enabled.
						continue
					}
					if status == "FAILED" {
						entry := resilience.DLQEntry{
							Entity: task.Key, BatchID: task.BatchID, Error: err.Error(),
							ErrorType: resilience.ClassifyError(err), FailedPhase: "dispatch",
						}
						if dlqErr := dlq.Put(ctx, entry); dlqErr != nil {
							zap.L().Warn("dispatcher: failed to record dead letter", zap.Error(dlqErr))
						}
					}
					if err := tasks.Ack(ctx, msg.Handle); err != nil {
						zap.L().Warn("dispatcher: failed to ack failed task", zap.Error(err))
					}
					continue
				}

				candidate.BatchID = task.BatchID
				if err := store.Upsert(ctx, candidate); err != nil {
					zap.L().Warn("dispatcher: failed to store candidate", zap.Error(err))
					continue
				}
				zap.L().Info("dispatcher: status",
					zap.String("status", "OK"), zap.Int("status_code", statusCode("OK")),
					zap.Int64("entity_id", task.Key.EntityID), zap.String("entity_type", task.Key.EntityType),
					zap.String("provider", task.Provider), zap.String("batch_id", task.BatchID))
				if err := tasks.Ack(ctx, msg.Handle); err != nil {
					zap.L().Warn("dispatcher: failed to ack task", zap.Error(err))
				}
			}
			health.tick()
			return len(messages), nil
		})
	},
}

func init() { rootCmd.AddCommand(serveDispatcherCmd) }

// toGeocodeAddress projects an envelope/model Address into the
// pkg/geocode.Address map the provider adapters operate on.
func toGeocodeAddress(addr model.Address) geocode.Address {
	out := make(geocode.Address, 8)
	for k, v := range addr.Fields() {
		out[k] = v
	}
	return out
}

// toGeocodeGuess extracts the feed's own coordinate guess, if any, for
// proximity scoring of alternates.
func toGeocodeGuess(addr model.Address) *geocode.Coordinate {
	if addr.Guess == nil {
		return nil
	}
	return &geocode.Coordinate{Longitude: addr.Guess.Longitude, Latitude: addr.Guess.Latitude}
}

// dispatchStatus maps a dispatch error to the fixed status vocabulary every
// task's status log line carries.
func dispatchStatus(err error) string {
	switch err.(type) {
	case *geocode.QuotaExhaustedError:
		return "QUOTA EXHAUSTED"
	case *geocode.NoResultsFoundError:
		return "NO RESULTS"
	case *geocode.RateLimitError:
		return "RESCHEDULE"
	default:
		return "FAILED"
	}
}

// statusCode gives each status a numeric companion for log-based alerting.
func statusCode(status string) int {
	switch status {
	case "OK":
		return 200
	case "NO RESULTS":
		return 404
	case "RESCHEDULE", "QUOTA EXHAUSTED":
		return 429
	default:
		return 500
	}
}
