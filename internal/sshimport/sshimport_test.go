package sshimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestParseSSHConfig(t *testing.T) {
	path := writeTestConfig(t, `
# comment
Host devbox
    HostName dev.example.com
    User alice
    Port 2222
    IdentityFile ~/.ssh/id_dev

Host *.wildcard
    User nobody

Host plain

Match host prod
    User root
`)
	entries, err := ParseSSHConfig(path)
	require.NoError(t, err)
	require.Len(t, entries, 2, "wildcard and Match blocks are skipped")

	devbox := entries[0]
	assert.Equal(t, "devbox", devbox.Alias)
	assert.Equal(t, "dev.example.com", devbox.HostName)
	assert.Equal(t, "alice", devbox.User)
	assert.Equal(t, 2222, devbox.Port)
	assert.Equal(t, "~/.ssh/id_dev", devbox.Identity)

	plain := entries[1]
	assert.Equal(t, "plain", plain.Alias)
	assert.Equal(t, "plain", plain.HostName, "hostname defaults to the alias")
}

func TestParseSSHConfigMatchResetsHost(t *testing.T) {
	path := writeTestConfig(t, `
Host a
    HostName a.example.com
Match all
    User leaked
`)
	entries, err := ParseSSHConfig(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].User, "options after Match must not bleed into the previous host")
}
