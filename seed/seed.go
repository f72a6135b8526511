// Package seed pushes the local sample records into the store at startup.
package seed

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stevemurr/simple-data-server/localdata"
	"github.com/stevemurr/simple-data-server/store"
)

// Result summarizes one seeding pass.
type Result struct {
	Added   int
	Failed  int
	Skipped bool
}

// Run creates every local record in the store using the record's own id.
// It is skipped in strict mode or when the store is not connected. Item
// failures are logged and do not stop the pass.
func Run(ctx context.Context, strict bool, conn *store.Connection, loader *localdata.Loader, log zerolog.Logger) Result {
	if strict {
		log.Info().Msg("strict mode, skipping local data seeding")
		return Result{Skipped: true}
	}
	s, err := conn.Store()
	if err != nil {
		log.Warn().Err(err).Msg("store unavailable, skipping local data seeding")
		return Result{Skipped: true}
	}

	var res Result
	for _, item := range loader.Records() {
		if item.Err != nil {
			res.Failed++
			log.Error().Err(item.Err).Msg("error adding item")
			continue
		}
		id, _ := item.Record.ID()
		if err := s.Create(ctx, item.Record); err != nil {
			res.Failed++
			log.Error().Err(err).Str("id", id).Msg("error adding item")
			continue
		}
		res.Added++
		log.Info().Str("id", id).Msg("item successfully added")
	}
	log.Info().Int("added", res.Added).Int("failed", res.Failed).Msg("local data seeding finished")
	return res
}
