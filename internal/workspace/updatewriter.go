package workspace

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/termwork/pkg/models"
)

// The update writer drains the persistent screen-update log and dispatches
// each row to the configured dispatcher (the web-share delivery glue). It
// sleeps on a condition variable; wake-ups are edge-triggered and coalesce.

const updateWriterMaxBatch = 100
const updateWriterErrorSleep = 1 * time.Second

var updateWriterCVar = sync.NewCond(&sync.Mutex{})
var updateWriterStopped bool

// UpdateDispatcher delivers one drained update row. Returning an error
// leaves the row in the log for a retry.
type UpdateDispatcher interface {
	DispatchScreenUpdate(ctx context.Context, update *models.ScreenUpdate) error
}

// NotifyUpdateWriter signals the writer that rows were appended. The signal
// runs in a goroutine: the writer holds its lock while reading from the DB,
// and the caller may be inside a DB transaction.
func NotifyUpdateWriter() {
	go func() {
		updateWriterCVar.L.Lock()
		defer updateWriterCVar.L.Unlock()
		updateWriterCVar.Signal()
	}()
}

// StopUpdateWriter makes the writer loop exit after its current batch.
func StopUpdateWriter() {
	updateWriterCVar.L.Lock()
	defer updateWriterCVar.L.Unlock()
	updateWriterStopped = true
	updateWriterCVar.Signal()
}

// updateWriterCheckMoreData blocks until the log is non-empty (or the
// writer is stopped, returning false).
func updateWriterCheckMoreData() bool {
	updateWriterCVar.L.Lock()
	defer updateWriterCVar.L.Unlock()
	for {
		if updateWriterStopped {
			return false
		}
		updateCount, err := CountScreenUpdates(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("update-writer error getting screen update count (sleeping)")
			// fall through to Wait
		}
		if updateCount > 0 {
			return true
		}
		updateWriterCVar.Wait()
	}
}

// RunUpdateWriter is the writer loop; run it in its own goroutine.
func RunUpdateWriter(dispatcher UpdateDispatcher) {
	log.Debug().Msg("update-writer started")
	for {
		if !updateWriterCheckMoreData() {
			log.Debug().Msg("update-writer stopped")
			return
		}
		ctx := context.Background()
		updates, err := GetScreenUpdates(ctx, updateWriterMaxBatch)
		if err != nil {
			log.Error().Err(err).Msg("update-writer error reading screen updates")
			time.Sleep(updateWriterErrorSleep)
			continue
		}
		var doneIds []int64
		for _, update := range updates {
			if err := dispatcher.DispatchScreenUpdate(ctx, update); err != nil {
				log.Error().Err(err).Str("updatetype", update.UpdateType).Msg("update-writer dispatch error")
				continue
			}
			doneIds = append(doneIds, update.UpdateId)
		}
		if err := RemoveScreenUpdates(ctx, doneIds); err != nil {
			log.Error().Err(err).Msg("update-writer error removing delivered updates")
			time.Sleep(updateWriterErrorSleep)
		}
	}
}
