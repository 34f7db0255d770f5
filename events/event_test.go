package events

import (
	"testing"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapEvent_LazyDecode(t *testing.T) {
	msg := &cachegrpc.MapEventMessage{
		ID:        cachegrpc.EventUpdated,
		Key:       []byte(`"k1"`),
		OldValue:  []byte(`{"qty":1}`),
		NewValue:  []byte(`{"qty":2}`),
		Synthetic: true,
	}
	evt := newMapEvent("orders", encoding.JSON{}, msg)

	assert.Equal(t, EntryUpdated, evt.Type())
	assert.True(t, evt.IsSynthetic())
	assert.False(t, evt.IsPriming())

	key, err := evt.Key()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	var order struct {
		Qty int `json:"qty"`
	}
	ok, err := evt.DecodeNewValue(&order)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, order.Qty)

	old, err := evt.OldValue()
	require.NoError(t, err)
	assert.NotNil(t, old)
}

func TestMapEvent_MissingValues(t *testing.T) {
	evt := newMapEvent("orders", encoding.JSON{}, &cachegrpc.MapEventMessage{
		ID:  cachegrpc.EventInserted,
		Key: []byte(`"k1"`),
	})

	v, err := evt.OldValue()
	require.NoError(t, err)
	assert.Nil(t, v)

	var dst string
	ok, err := evt.DecodeNewValue(&dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMapEvent_BadKeyFailsOnAccess(t *testing.T) {
	evt := newMapEvent("orders", encoding.JSON{}, &cachegrpc.MapEventMessage{
		ID:       cachegrpc.EventDeleted,
		Key:      []byte(`{bad`),
		NewValue: []byte(`1`),
	})

	_, err := evt.Key()
	require.Error(t, err)
	_, again := evt.Key()
	assert.Equal(t, err, again)

	v, err := evt.NewValue()
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "inserted", EntryInserted.String())
	assert.Equal(t, "updated", EntryUpdated.String())
	assert.Equal(t, "deleted", EntryDeleted.String())
	assert.Equal(t, "unknown(9)", EventType(9).String())
}

func TestListenerFuncs_NilCallbacks(t *testing.T) {
	evt := newMapEvent("orders", encoding.JSON{}, &cachegrpc.MapEventMessage{ID: cachegrpc.EventInserted})
	l := &ListenerFuncs{}
	assert.NotPanics(t, func() {
		l.OnInserted(evt)
		l.OnUpdated(evt)
		l.OnDeleted(evt)
	})
}
