// Command termworkd is the terminal-workbench server core: it owns the
// primary store, the blockstore, the pty files, and the update bus.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/termwork/internal/blockstore"
	"github.com/thebtf/termwork/internal/config"
	"github.com/thebtf/termwork/internal/db"
	"github.com/thebtf/termwork/internal/server"
	"github.com/thebtf/termwork/internal/sshimport"
	"github.com/thebtf/termwork/internal/workspace"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	homeDir := flag.String("home", "", "App home directory (default: ~/.termwork)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if *homeDir != "" {
		os.Setenv(config.HomeVarName, *homeDir)
	}
	if err := config.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure home directories")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.Default()
	}
	if *debug || cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("termworkd exited with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := filepath.Join(config.GetHomeDir(), db.DBFileName)
	if err := db.Open(dbPath); err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if err := db.BackupDB(); err != nil {
		log.Warn().Err(err).Msg("db backup failed")
	}

	clientData, err := workspace.EnsureClientData(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("clientid", clientData.ClientId).Int("dbversion", clientData.DBVersion).Str("version", Version).Msg("termworkd starting")
	if err := workspace.EnsureLocalRemote(ctx); err != nil {
		return err
	}
	if err := workspace.EnsureOneSession(ctx); err != nil {
		return err
	}
	// cmds left running by a previous process are gone now
	if err := workspace.HangupAllRunningCmds(ctx); err != nil {
		return err
	}
	if err := workspace.ReInitFocus(ctx); err != nil {
		return err
	}

	if err := blockstore.InitBlockstore(); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		workspace.RunUpdateWriter(server.BusDispatcher{})
		return nil
	})

	if cfg.SSHConfigImport {
		sshConfigPath := cfg.SSHConfigPath
		if sshConfigPath == "" {
			userHome, err := os.UserHomeDir()
			if err == nil {
				sshConfigPath = filepath.Join(userHome, ".ssh", "config")
			}
		}
		if sshConfigPath != "" {
			watcher, err := sshimport.NewWatcher(sshConfigPath)
			if err != nil {
				log.Warn().Err(err).Msg("cannot create ssh config watcher")
			} else {
				if err := watcher.Start(groupCtx); err != nil {
					log.Warn().Err(err).Msg("cannot start ssh config watcher")
				}
				defer watcher.Stop()
			}
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewRouter(),
	}
	group.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		workspace.StopUpdateWriter()
		blockstore.StopFlushTimer()
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer flushCancel()
		if err := blockstore.FlushCache(flushCtx); err != nil {
			log.Error().Err(err).Msg("final blockstore flush failed")
		}
		return nil
	})

	err = group.Wait()
	log.Info().Msg("termworkd stopped")
	return err
}
