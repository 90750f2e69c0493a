// Package bus is the in-memory publish/subscribe channel for typed change
// records. Mutators accumulate records into an UpdatePacket and hand it to
// the main bus; subscribers (the RPC glue feeding UIs) receive packets on
// buffered channels. Delivery is best effort: a slow subscriber drops
// intermediate packets and resyncs from a full ConnectUpdate.
package bus

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const ModelUpdateStr = "model-update"

// SubscriberChanSize bounds each subscriber's backlog before drops begin.
const SubscriberChanSize = 100

// UpdateItem is one typed change record.
type UpdateItem interface {
	GetType() string
}

// UpdatePacket is what subscribers receive.
type UpdatePacket interface {
	GetType() string
	IsEmpty() bool
}

// ModelUpdatePacket is the standard packet: an ordered list of records.
type ModelUpdatePacket struct {
	Updates []UpdateItem
}

func (*ModelUpdatePacket) GetType() string {
	return ModelUpdateStr
}

func (upk *ModelUpdatePacket) IsEmpty() bool {
	return upk == nil || len(upk.Updates) == 0
}

// AddUpdate appends records to the packet.
func (upk *ModelUpdatePacket) AddUpdate(items ...UpdateItem) {
	upk.Updates = append(upk.Updates, items...)
}

// Merge appends the records of another packet.
func (upk *ModelUpdatePacket) Merge(other *ModelUpdatePacket) {
	if other == nil {
		return
	}
	upk.Updates = append(upk.Updates, other.Updates...)
}

// MarshalJSON renders the wire form: {"type": "model-update", "updates":
// [{"<itemtype>": {...}}, ...]}.
func (upk *ModelUpdatePacket) MarshalJSON() ([]byte, error) {
	rtn := make(map[string]interface{})
	rtn["type"] = ModelUpdateStr
	updates := make([]map[string]interface{}, 0, len(upk.Updates))
	for _, item := range upk.Updates {
		updates = append(updates, map[string]interface{}{item.GetType(): item})
	}
	rtn["updates"] = updates
	return json.Marshal(rtn)
}

// MakeUpdatePacket returns an empty packet.
func MakeUpdatePacket() *ModelUpdatePacket {
	return &ModelUpdatePacket{}
}

// GetUpdateItems returns the records of one concrete type from a packet.
func GetUpdateItems[T UpdateItem](upk *ModelUpdatePacket) []*T {
	var rtn []*T
	if upk == nil {
		return rtn
	}
	for _, item := range upk.Updates {
		if typed, ok := item.(T); ok {
			rtn = append(rtn, &typed)
		}
	}
	return rtn
}

// Subscriber is one registered consumer of the main bus.
type Subscriber struct {
	Id string
	Ch chan UpdatePacket

	dropCount int64
}

// Bus fans packets out to subscribers.
type Bus struct {
	lock        sync.Mutex
	subscribers map[string]*Subscriber
}

// MainUpdateBus is the process-wide bus, intentionally a singleton.
var MainUpdateBus = MakeBus()

func MakeBus() *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers a consumer. The returned channel is closed on
// Unsubscribe.
func (bus *Bus) Subscribe(id string) *Subscriber {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if cur, found := bus.subscribers[id]; found {
		return cur
	}
	sub := &Subscriber{Id: id, Ch: make(chan UpdatePacket, SubscriberChanSize)}
	bus.subscribers[id] = sub
	log.Debug().Str("subscriber", id).Int("total", len(bus.subscribers)).Msg("bus subscriber added")
	return sub
}

// Unsubscribe removes a consumer and closes its channel.
func (bus *Bus) Unsubscribe(id string) {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	sub, found := bus.subscribers[id]
	if !found {
		return
	}
	delete(bus.subscribers, id)
	close(sub.Ch)
	log.Debug().Str("subscriber", id).Int("total", len(bus.subscribers)).Msg("bus subscriber removed")
}

// DoUpdate publishes a packet to every subscriber. Sends never block: a
// full subscriber channel drops the packet (the subscriber resyncs via
// ConnectUpdate).
func (bus *Bus) DoUpdate(upk UpdatePacket) {
	if upk == nil || upk.IsEmpty() {
		return
	}
	bus.lock.Lock()
	defer bus.lock.Unlock()
	for _, sub := range bus.subscribers {
		select {
		case sub.Ch <- upk:
		default:
			sub.dropCount++
			log.Debug().Str("subscriber", sub.Id).Int64("drops", sub.dropCount).Msg("subscriber backlog full, dropping update")
		}
	}
}

// NumSubscribers returns the current subscriber count.
func (bus *Bus) NumSubscribers() int {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	return len(bus.subscribers)
}
