// Package workspace is the transactional mutator over the relational model:
// sessions, screens, lines, cmds, remotes, and remote instances. Every
// mutating operation runs inside a single transaction, enforces the
// referential invariants, and accumulates typed change records into an
// update packet for the bus.
package workspace

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenUUID returns a fresh entity id.
func GenUUID() string {
	return uuid.New().String()
}

func containsStr(strs []string, testStr string) bool {
	for _, s := range strs {
		if s == testStr {
			return true
		}
	}
	return false
}

// FmtUniqueName makes name unique among strs. An empty name is generated
// from defaultFmtStr (which must contain %d) starting at startIdx; a taken
// name gets a "-2", "-3", ... suffix.
func FmtUniqueName(name string, defaultFmtStr string, startIdx int, strs []string) string {
	var fmtStr string
	if name != "" {
		if !containsStr(strs, name) {
			return name
		}
		fmtStr = name + "-%d"
		startIdx = 2
	} else {
		fmtStr = defaultFmtStr
	}
	if !strings.Contains(fmtStr, "%d") {
		panic("invalid fmtStr: " + fmtStr)
	}
	for {
		testName := fmt.Sprintf(fmtStr, startIdx)
		if containsStr(strs, testName) {
			startIdx++
			continue
		}
		return testName
	}
}

// getNextId picks the neighbor of delId in ids: the next id by order, or the
// previous one when delId is last ("" when nothing remains).
func getNextId(ids []string, delId string) string {
	if len(ids) == 0 {
		return ""
	}
	if len(ids) == 1 {
		if ids[0] == delId {
			return ""
		}
		return ids[0]
	}
	for idx := 0; idx < len(ids); idx++ {
		if ids[idx] == delId {
			if idx == len(ids)-1 {
				return ids[idx-1]
			}
			return ids[idx+1]
		}
	}
	return ids[0]
}

// reorderStrs moves toMove to newPos (0-indexed), preserving the relative
// order of the rest. A newPos past the end appends.
func reorderStrs(strs []string, toMove string, newPos int) []string {
	if !containsStr(strs, toMove) {
		return strs
	}
	var added bool
	rtn := make([]string, 0, len(strs))
	for _, s := range strs {
		if s == toMove {
			continue
		}
		if len(rtn) == newPos {
			added = true
			rtn = append(rtn, toMove)
		}
		rtn = append(rtn, s)
	}
	if !added {
		rtn = append(rtn, toMove)
	}
	return rtn
}
