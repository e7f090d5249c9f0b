package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/cityfallback"
	"github.com/trivago/geolocator/internal/consolidator"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/ruleset"
)

// consolidatorBatch is how many changed entities a single worker pass
// drains from the store's change feed before yielding back to the loop's
// idle check, keeping one slow entity from starving the rest of the batch.
const consolidatorBatch = 50

var serveConsolidatorCmd = &cobra.Command{
	Use:   "serve-consolidator",
	Short: "Run the consolidator worker",
	Long:  "Consumes consolidation triggers, runs the ruleset/fallback cascade over an entity's candidates, and writes the new consolidated_<env> winner when it beats the previous one.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("consolidator"); err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		geocoderRuleset, err := ruleset.Load(fmt.Sprintf("%s/geocoders-ruleset-%s.json", cfg.Bootstrap.DataDir, cfg.Ruleset.GeocoderRulesetVersion))
		if err != nil {
			return err
		}
		partnerRuleset, err := ruleset.Load(fmt.Sprintf("%s/partners-ruleset-%s.json", cfg.Bootstrap.DataDir, cfg.Ruleset.PartnerRulesetVersion))
		if err != nil {
			return err
		}
		cityFallback, err := cityfallback.LoadFromFile(cfg.Bootstrap.DataDir + "/destinations.json")
		if err != nil {
			return err
		}

		cons := consolidator.New(geocoderRuleset, partnerRuleset, cityFallback)
		store := candidatestore.NewPostgresStore(pool, pool, cfg.Store.GeocodesTable)
		output := queue.NewPostgresStream[envelope.ConsolidatedOutput](pool, cfg.Queue.OutputStream)

		changed, err := store.Watch(ctx)
		if err != nil {
			return err
		}

		health := &workerHealth{}
		startHealthServer(ctx, "consolidator", health)

		return runWorkerLoop(ctx, "consolidator", func(ctx context.Context) (int, error) {
			n := 0
			for n < consolidatorBatch {
				select {
				case key, ok := <-changed:
					if !ok {
						return n, nil
					}
					if err := consolidateOne(ctx, cons, store, output, cfg.Environment, key); err != nil {
						zap.L().Warn("consolidator: failed to consolidate entity",
							zap.String("entity", key.Composite()), zap.Error(err))
					}
					n++
				default:
					health.tick()
					return n, nil
				}
			}
			health.tick()
			return n, nil
		})
	},
}

func init() { rootCmd.AddCommand(serveConsolidatorCmd) }

// consolidateOne runs the cascade for a single entity and, on a new winner,
// writes the consolidated_<env> row and publishes it to the output stream.
func consolidateOne(ctx context.Context, cons *consolidator.Consolidator, store candidatestore.Store, output *queue.PostgresStream[envelope.ConsolidatedOutput], environment string, key model.EntityKey) error {
	candidates, err := store.GetAllByEntity(ctx, key)
	if err != nil {
		return err
	}

	var previous *model.Candidate
	consolidatedProvider := model.ConsolidatedProvider(environment)
	for i := range candidates {
		if candidates[i].Provider == consolidatedProvider {
			previous = &candidates[i]
			break
		}
	}

	winner, ok := cons.Consolidate(consolidator.EligibleCandidates(candidates), previous)
	if !ok {
		return nil
	}

	winner.Provider = consolidatedProvider
	winner.Entity = key.Composite()
	// batch_id is not part of the store's uniqueness key (entity, provider)
	// but is still carried on the row for traceability; pin it empty here,
	// matching router.routeTrusted's trusted-winner write, since a winner
	// isn't attributable to any single source batch.
	winner.BatchID = ""
	if err := store.Upsert(ctx, winner); err != nil {
		return err
	}

	zap.L().Info("consolidator: published new winner",
		zap.String("entity", key.Composite()), zap.Float64("score", winner.Score))
	return output.Publish(ctx, []envelope.ConsolidatedOutput{{Candidate: winner}})
}
