package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Batch is one round of selected identities. The JSON shape is what the
// CLI `batch` subcommand prints.
type Batch struct {
	IdentityIDs     []string  `json:"browser_ids"`
	BatchSize       int       `json:"batch_size"`
	ScheduledAt     time.Time `json:"scheduled_time"`
	NextScheduledAt time.Time `json:"next_batch_time"`
}

// SelectBatch wraps the store's due-identity query. It is a pure query:
// repeated calls mutate nothing.
func (e *Engine) SelectBatch(ctx context.Context, targetSize int, interval time.Duration) (Batch, error) {
	ids, err := e.store.SelectDue(ctx, targetSize)
	if err != nil {
		return Batch{}, err
	}
	now := time.Now().UTC()
	return Batch{
		IdentityIDs:     ids,
		BatchSize:       targetSize,
		ScheduledAt:     now,
		NextScheduledAt: now.Add(interval),
	}, nil
}

// chunkIDs splits ids into groups of at most size.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		return [][]string{ids}
	}
	var groups [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		groups = append(groups, ids[i:end])
	}
	return groups
}

// batchBackoff is the pause after a failed batch run, deliberately
// shorter than any sensible batch interval.
const batchBackoff = time.Minute

// RunForever runs batches on an interval until ctx is cancelled. A batch
// error is logged and backed off, never fatal; cancellation is honored
// between batches, not mid-batch.
func (e *Engine) RunForever(ctx context.Context, targetSize int, interval time.Duration) error {
	log.Info().Int("batch_size", targetSize).Dur("interval", interval).Msg("starting continuous automation")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, err := e.RunBatch(ctx, targetSize)
		if err != nil {
			log.Error().Err(err).Dur("backoff", batchBackoff).Msg("batch run failed, backing off")
			if !sleepCtx(ctx, batchBackoff) {
				return ctx.Err()
			}
			continue
		}

		log.Info().
			Int("total", report.Total).
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Dur("interval", interval).
			Msg("waiting for next batch")
		if !sleepCtx(ctx, interval) {
			return ctx.Err()
		}
	}
}

// sleepCtx waits d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
