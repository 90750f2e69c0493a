// Package sshimport keeps the remote table in sync with ~/.ssh/config:
// Host entries are imported as remotes with sshconfigsrc=sshconfig-import,
// and a file watcher re-imports on change.
package sshimport

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/termwork/internal/workspace"
	"github.com/thebtf/termwork/pkg/models"
)

// HostEntry is one parsed Host block.
type HostEntry struct {
	Alias    string
	HostName string
	User     string
	Port     int
	Identity string
}

// ParseSSHConfig extracts the concrete Host blocks of an ssh config file.
// Pattern hosts (wildcards) and Match blocks are skipped.
func ParseSSHConfig(path string) ([]*HostEntry, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	var entries []*HostEntry
	var cur *HostEntry
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		keyword := strings.ToLower(fields[0])
		switch keyword {
		case "host":
			cur = nil
			name := fields[1]
			if strings.ContainsAny(name, "*?!") {
				continue
			}
			cur = &HostEntry{Alias: name, HostName: name}
			entries = append(entries, cur)
		case "match":
			cur = nil
		case "hostname":
			if cur != nil {
				cur.HostName = fields[1]
			}
		case "user":
			if cur != nil {
				cur.User = fields[1]
			}
		case "port":
			if cur != nil {
				if port, err := strconv.Atoi(fields[1]); err == nil {
					cur.Port = port
				}
			}
		case "identityfile":
			if cur != nil {
				cur.Identity = fields[1]
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func canonicalName(entry *HostEntry) string {
	user := entry.User
	if user == "" {
		user = "-"
	}
	return fmt.Sprintf("%s@%s", user, entry.HostName)
}

// ImportSSHConfig upserts a remote per parsed host and archives previously
// imported remotes that disappeared from the config.
func ImportSSHConfig(ctx context.Context, path string) error {
	entries, err := ParseSSHConfig(path)
	if err != nil {
		return fmt.Errorf("parse ssh config: %w", err)
	}
	existing, err := workspace.GetAllImportedRemotes(ctx)
	if err != nil {
		return fmt.Errorf("get imported remotes: %w", err)
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		cname := canonicalName(entry)
		seen[cname] = true
		if cur, found := existing[cname]; found {
			editMap := map[string]interface{}{}
			if entry.Identity != "" {
				editMap[workspace.RemoteField_SSHKey] = entry.Identity
			}
			if len(editMap) > 0 {
				if _, err := workspace.UpdateRemote(ctx, cur.RemoteId, editMap); err != nil {
					log.Error().Err(err).Str("remote", cname).Msg("sshimport update failed")
				}
			}
			continue
		}
		remote := &models.Remote{
			RemoteId:            workspace.GenUUID(),
			RemoteType:          models.RemoteTypeSsh,
			RemoteAlias:         entry.Alias,
			RemoteCanonicalName: cname,
			RemoteUser:          entry.User,
			RemoteHost:          entry.HostName,
			ConnectMode:         models.ConnectModeManual,
			SSHOpts: &models.SSHOpts{
				SSHHost:     entry.HostName,
				SSHUser:     entry.User,
				SSHPort:     entry.Port,
				SSHIdentity: entry.Identity,
			},
			SSHConfigSrc: models.SSHConfigSrcTypeImport,
			ShellPref:    models.ShellTypePrefDetect,
		}
		if err := workspace.UpsertRemote(ctx, remote); err != nil {
			// duplicate aliases across manual + imported remotes are expected
			log.Debug().Err(err).Str("remote", cname).Msg("sshimport skipped remote")
			continue
		}
		log.Info().Str("remote", cname).Msg("imported remote from ssh config")
	}
	for cname, cur := range existing {
		if seen[cname] || cur.Archived {
			continue
		}
		if err := workspace.ArchiveRemote(ctx, cur.RemoteId); err != nil {
			log.Error().Err(err).Str("remote", cname).Msg("sshimport archive failed")
		}
	}
	return nil
}
