package blockstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// The flush timer is a singleton controlled by a condition variable so tests
// can start and stop it deterministically.
type flushTimer struct {
	T         *time.Ticker
	IsRunning bool
	DoneCh    chan struct{}
	CVar      *sync.Cond
}

var globalFlushTimer = &flushTimer{CVar: sync.NewCond(&sync.Mutex{})}

// stopFlushTimer stops the flush timer if running, blocking until the timer
// goroutine has exited.
func stopFlushTimer() {
	globalFlushTimer.CVar.L.Lock()
	defer globalFlushTimer.CVar.L.Unlock()
	if !globalFlushTimer.IsRunning {
		return
	}
	close(globalFlushTimer.DoneCh)
	for globalFlushTimer.IsRunning {
		globalFlushTimer.CVar.Wait()
	}
}

// StopFlushTimer stops the background flush. Callers should FlushCache once
// afterwards to persist remaining dirty state.
func StopFlushTimer() {
	stopFlushTimer()
}

func createFlushTimer(flushTimeout time.Duration) bool {
	globalFlushTimer.CVar.L.Lock()
	defer globalFlushTimer.CVar.L.Unlock()
	if globalFlushTimer.IsRunning {
		return false
	}
	globalFlushTimer.T = time.NewTicker(flushTimeout)
	globalFlushTimer.DoneCh = make(chan struct{})
	globalFlushTimer.IsRunning = true
	return true
}

// startFlushTimer starts the flush ticker in a goroutine. Returns an error
// if the timer is already running.
func startFlushTimer(flushTimeout time.Duration) error {
	if !createFlushTimer(flushTimeout) {
		return fmt.Errorf("flush timer already running")
	}
	go func() {
		defer func() {
			globalFlushTimer.CVar.L.Lock()
			defer globalFlushTimer.CVar.L.Unlock()
			globalFlushTimer.T.Stop()
			globalFlushTimer.IsRunning = false
			globalFlushTimer.CVar.Broadcast()
		}()
		for {
			select {
			case <-globalFlushTimer.T.C:
				if err := FlushCache(context.Background()); err != nil {
					log.Error().Err(err).Msg("blockstore flush error")
				}
			case <-globalFlushTimer.DoneCh:
				return
			}
		}
	}()
	return nil
}
