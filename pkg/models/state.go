package models

import (
	"github.com/thebtf/termwork/pkg/dbmap"
)

// RemoteInstance is an active shell instance bound to a (session, screen,
// remote) triple. ScreenId is empty when the instance is session scoped.
type RemoteInstance struct {
	RIId             string            `json:"riid"`
	Name             string            `json:"name"`
	SessionId        string            `json:"sessionid"`
	ScreenId         string            `json:"screenid"`
	RemoteOwnerId    string            `json:"remoteownerid"`
	RemoteId         string            `json:"remoteid"`
	FeState          map[string]string `json:"festate"`
	ShellType        string            `json:"shelltype"`
	StateBaseHash    string            `json:"-"`
	StateDiffHashArr []string          `json:"-"`

	// only for updates
	Remove bool `json:"remove,omitempty"`
}

func (RemoteInstance) GetType() string {
	return "remoteinstance"
}

func (ri *RemoteInstance) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["riid"] = ri.RIId
	rtn["name"] = ri.Name
	rtn["sessionid"] = ri.SessionId
	rtn["screenid"] = ri.ScreenId
	rtn["remoteownerid"] = ri.RemoteOwnerId
	rtn["remoteid"] = ri.RemoteId
	rtn["festate"] = dbmap.QuickJson(ri.FeState)
	rtn["statebasehash"] = ri.StateBaseHash
	rtn["statediffhasharr"] = dbmap.QuickJsonArr(ri.StateDiffHashArr)
	rtn["shelltype"] = ri.ShellType
	return rtn
}

func (ri *RemoteInstance) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&ri.RIId, m, "riid")
	dbmap.QuickSetStr(&ri.Name, m, "name")
	dbmap.QuickSetStr(&ri.SessionId, m, "sessionid")
	dbmap.QuickSetStr(&ri.ScreenId, m, "screenid")
	dbmap.QuickSetStr(&ri.RemoteOwnerId, m, "remoteownerid")
	dbmap.QuickSetStr(&ri.RemoteId, m, "remoteid")
	dbmap.QuickSetJson(&ri.FeState, m, "festate")
	dbmap.QuickSetStr(&ri.StateBaseHash, m, "statebasehash")
	dbmap.QuickSetJsonArr(&ri.StateDiffHashArr, m, "statediffhasharr")
	dbmap.QuickSetStr(&ri.ShellType, m, "shelltype")
	return true
}

// StateBase is a content-addressed, immutable shell-state capture.
type StateBase struct {
	BaseHash string
	Version  string
	Ts       int64
	Data     []byte
}

func (sb *StateBase) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["basehash"] = sb.BaseHash
	rtn["version"] = sb.Version
	rtn["ts"] = sb.Ts
	rtn["data"] = sb.Data
	return rtn
}

func (sb *StateBase) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&sb.BaseHash, m, "basehash")
	dbmap.QuickSetStr(&sb.Version, m, "version")
	dbmap.QuickSetInt64(&sb.Ts, m, "ts")
	dbmap.QuickSetBytes(&sb.Data, m, "data")
	return true
}

// StateDiff is a content-addressed delta over a StateBase. Its validity
// requires the base and every predecessor diff to exist.
type StateDiff struct {
	DiffHash    string
	Ts          int64
	BaseHash    string
	DiffHashArr []string
	Data        []byte
}

func (sd *StateDiff) ToMap() map[string]interface{} {
	rtn := make(map[string]interface{})
	rtn["diffhash"] = sd.DiffHash
	rtn["ts"] = sd.Ts
	rtn["basehash"] = sd.BaseHash
	rtn["diffhasharr"] = dbmap.QuickJsonArr(sd.DiffHashArr)
	rtn["data"] = sd.Data
	return rtn
}

func (sd *StateDiff) FromMap(m map[string]interface{}) bool {
	dbmap.QuickSetStr(&sd.DiffHash, m, "diffhash")
	dbmap.QuickSetInt64(&sd.Ts, m, "ts")
	dbmap.QuickSetStr(&sd.BaseHash, m, "basehash")
	dbmap.QuickSetJsonArr(&sd.DiffHashArr, m, "diffhasharr")
	dbmap.QuickSetBytes(&sd.Data, m, "data")
	return true
}
