// Package shellstate models captured shell environments and their diffs,
// plus the content-addressed repository that stores them. A state has a
// canonical byte encoding; its 64-bit content hash addresses it.
package shellstate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
)

// ShellState is a full capture of a shell environment. ShellVars holds
// "name=value" declaration lines in sorted order (the canonical form).
type ShellState struct {
	Version   string `json:"version"`
	Cwd       string `json:"cwd,omitempty"`
	ShellVars []byte `json:"shellvars,omitempty"`
	Aliases   string `json:"aliases,omitempty"`
	FuncsStr  string `json:"funcs,omitempty"`
	Error     string `json:"error,omitempty"`
}

// VarsDiff is the variable delta of a ShellStateDiff.
type VarsDiff struct {
	Upsert map[string]string `json:"upsert,omitempty"`
	Delete []string          `json:"delete,omitempty"`
}

// ShellStateDiff is a delta over a base state. Nil pointer fields mean "no
// change"; NewAliases/NewFuncs are full replacements when set.
type ShellStateDiff struct {
	Version     string    `json:"version"`
	BaseHash    string    `json:"basehash"`
	DiffHashArr []string  `json:"diffhasharr,omitempty"`
	Cwd         string    `json:"cwd,omitempty"`
	VarsDiff    *VarsDiff `json:"varsdiff,omitempty"`
	NewAliases  *string   `json:"newaliases,omitempty"`
	NewFuncs    *string   `json:"newfuncs,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ParseShellStateVersion splits a version string of the form
// "<shell> v<version>" (e.g. "bash v5.2.15").
func ParseShellStateVersion(version string) (string, string, error) {
	shellType, versionStr, found := strings.Cut(version, " ")
	if !found || shellType == "" || versionStr == "" {
		return "", "", fmt.Errorf("invalid shell state version %q", version)
	}
	return shellType, versionStr, nil
}

func (state *ShellState) GetShellType() string {
	shellType, _, err := ParseShellStateVersion(state.Version)
	if err != nil {
		return ""
	}
	return shellType
}

func (diff *ShellStateDiff) GetShellType() string {
	shellType, _, err := ParseShellStateVersion(diff.Version)
	if err != nil {
		return ""
	}
	return shellType
}

func hashOf(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// EncodeAndHash returns the canonical encoding of the state and its content
// hash. The encoding is deterministic: struct field order is fixed and
// declaration lines are normalized to sorted order.
func (state *ShellState) EncodeAndHash() (string, []byte) {
	normalized := *state
	normalized.ShellVars = EncodeDeclMap(DeclMapFromState(&normalized))
	data, err := json.Marshal(&normalized)
	if err != nil {
		// a ShellState always marshals; fields are plain strings/bytes
		panic(fmt.Sprintf("cannot encode shell state: %v", err))
	}
	return hashOf(data), data
}

// DecodeShellState decodes the canonical encoding.
func (state *ShellState) DecodeShellState(data []byte) error {
	return json.Unmarshal(data, state)
}

// EncodeAndHash returns the canonical encoding of the diff and its content
// hash. The hash covers the base hash and predecessor chain, so identical
// deltas at different chain positions address distinct rows.
func (diff *ShellStateDiff) EncodeAndHash() (string, []byte) {
	data, err := json.Marshal(diff)
	if err != nil {
		panic(fmt.Sprintf("cannot encode shell state diff: %v", err))
	}
	return hashOf(data), data
}

// DecodeShellStateDiff decodes the canonical encoding.
func (diff *ShellStateDiff) DecodeShellStateDiff(data []byte) error {
	return json.Unmarshal(data, diff)
}

// DeclMapFromState parses the declaration lines into a map.
func DeclMapFromState(state *ShellState) map[string]string {
	rtn := make(map[string]string)
	if state == nil || len(state.ShellVars) == 0 {
		return rtn
	}
	for _, line := range strings.Split(string(state.ShellVars), "\n") {
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found || name == "" {
			continue
		}
		rtn[name] = value
	}
	return rtn
}

// EncodeDeclMap renders a declaration map in canonical (sorted) form.
func EncodeDeclMap(declMap map[string]string) []byte {
	names := make([]string, 0, len(declMap))
	for name := range declMap {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(declMap[name])
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// ApplyShellStateDiff folds one diff into a state, returning the new state.
func ApplyShellStateDiff(state *ShellState, diff *ShellStateDiff) (*ShellState, error) {
	if state == nil {
		return nil, fmt.Errorf("cannot apply diff to nil state")
	}
	if diff == nil {
		return state, nil
	}
	rtn := *state
	if diff.Version != "" {
		rtn.Version = diff.Version
	}
	if diff.Cwd != "" {
		rtn.Cwd = diff.Cwd
	}
	if diff.VarsDiff != nil {
		declMap := DeclMapFromState(&rtn)
		for name, value := range diff.VarsDiff.Upsert {
			declMap[name] = value
		}
		for _, name := range diff.VarsDiff.Delete {
			delete(declMap, name)
		}
		rtn.ShellVars = EncodeDeclMap(declMap)
	}
	if diff.NewAliases != nil {
		rtn.Aliases = *diff.NewAliases
	}
	if diff.NewFuncs != nil {
		rtn.FuncsStr = *diff.NewFuncs
	}
	if diff.Error != "" {
		rtn.Error = diff.Error
	}
	return &rtn, nil
}

// MakeShellStateDiff computes the delta from base to newState. The caller
// fills in DiffHashArr for the chain position.
func MakeShellStateDiff(base *ShellState, baseHash string, newState *ShellState) *ShellStateDiff {
	diff := &ShellStateDiff{Version: newState.Version, BaseHash: baseHash}
	if newState.Cwd != base.Cwd {
		diff.Cwd = newState.Cwd
	}
	baseDecls := DeclMapFromState(base)
	newDecls := DeclMapFromState(newState)
	varsDiff := &VarsDiff{Upsert: make(map[string]string)}
	for name, value := range newDecls {
		if baseValue, ok := baseDecls[name]; !ok || baseValue != value {
			varsDiff.Upsert[name] = value
		}
	}
	for name := range baseDecls {
		if _, ok := newDecls[name]; !ok {
			varsDiff.Delete = append(varsDiff.Delete, name)
		}
	}
	sort.Strings(varsDiff.Delete)
	if len(varsDiff.Upsert) > 0 || len(varsDiff.Delete) > 0 {
		diff.VarsDiff = varsDiff
	}
	if newState.Aliases != base.Aliases {
		diff.NewAliases = &newState.Aliases
	}
	if newState.FuncsStr != base.FuncsStr {
		diff.NewFuncs = &newState.FuncsStr
	}
	if newState.Error != base.Error {
		diff.Error = newState.Error
	}
	return diff
}
