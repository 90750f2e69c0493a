package shellstate

import (
	"strings"
)

// FeStateFromShellState extracts the small environment summary visible to
// the front end: cwd, virtualenv markers, and PROMPTVAR_* declarations.
func FeStateFromShellState(state *ShellState) map[string]string {
	if state == nil {
		return nil
	}
	rtn := make(map[string]string)
	rtn["cwd"] = state.Cwd
	declMap := DeclMapFromState(state)
	if value, ok := declMap["VIRTUAL_ENV"]; ok {
		rtn["VIRTUAL_ENV"] = value
	}
	if value, ok := declMap["CONDA_DEFAULT_ENV"]; ok {
		rtn["CONDA_DEFAULT_ENV"] = value
	}
	for name, value := range declMap {
		if strings.HasPrefix(name, "PROMPTVAR_") {
			rtn[name] = value
		}
	}
	if _, _, err := ParseShellStateVersion(state.Version); err != nil {
		rtn["invalidstate"] = "1"
	}
	return rtn
}
