package bus

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUpdate struct {
	Value string `json:"value"`
}

func (testUpdate) GetType() string {
	return "testupdate"
}

func TestPacketAddAndGetItems(t *testing.T) {
	upk := MakeUpdatePacket()
	assert.True(t, upk.IsEmpty())
	upk.AddUpdate(testUpdate{Value: "a"}, testUpdate{Value: "b"})
	assert.False(t, upk.IsEmpty())

	items := GetUpdateItems[testUpdate](upk)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Value)
	assert.Equal(t, "b", items[1].Value)
}

func TestPacketWireFormat(t *testing.T) {
	upk := MakeUpdatePacket()
	upk.AddUpdate(testUpdate{Value: "x"})
	data, err := json.Marshal(upk)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ModelUpdateStr, decoded["type"])
	updates, ok := decoded["updates"].([]interface{})
	require.True(t, ok)
	require.Len(t, updates, 1)
	entry := updates[0].(map[string]interface{})
	require.Contains(t, entry, "testupdate")
}

func TestBusSubscribePublish(t *testing.T) {
	b := MakeBus()
	sub := b.Subscribe("c1")
	assert.Equal(t, 1, b.NumSubscribers())

	upk := MakeUpdatePacket()
	upk.AddUpdate(testUpdate{Value: "hello"})
	b.DoUpdate(upk)

	got := <-sub.Ch
	require.NotNil(t, got)
	assert.Equal(t, ModelUpdateStr, got.GetType())

	b.Unsubscribe("c1")
	assert.Equal(t, 0, b.NumSubscribers())
	_, open := <-sub.Ch
	assert.False(t, open, "channel closes on unsubscribe")
}

func TestBusDropsWhenFull(t *testing.T) {
	b := MakeBus()
	sub := b.Subscribe("slow")
	upk := MakeUpdatePacket()
	upk.AddUpdate(testUpdate{Value: "x"})
	// overflow the buffered channel; sends must never block
	for i := 0; i < SubscriberChanSize+10; i++ {
		b.DoUpdate(upk)
	}
	assert.Len(t, sub.Ch, SubscriberChanSize)
	b.Unsubscribe("slow")
}

func TestEmptyPacketNotDelivered(t *testing.T) {
	b := MakeBus()
	sub := b.Subscribe("c1")
	b.DoUpdate(MakeUpdatePacket())
	assert.Len(t, sub.Ch, 0)
	b.Unsubscribe("c1")
}
