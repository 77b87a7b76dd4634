package chord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_DecodeNumericWidths(t *testing.T) {
	tests := []struct {
		name string
		id   any
	}{
		{name: "int8", id: int8(100)},
		{name: "uint16", id: uint16(100)},
		{name: "int64", id: int64(100)},
		{name: "uint64", id: uint64(100)},
		{name: "float64", id: float64(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Method: MethodJoinReq, Args: map[string]any{"addr": "127.0.0.1:5000", "id": tt.id}}
			var args JoinArgs
			require.NoError(t, msg.Decode(&args))
			assert.Equal(t, uint64(100), args.ID)
			assert.Equal(t, "127.0.0.1:5000", args.Addr)
		})
	}
}

func TestMessage_DecodeStabilize(t *testing.T) {
	var args StabilizeArgs
	require.NoError(t, NewStabilize(nil).Decode(&args))
	assert.Nil(t, args.PredecessorID)
	assert.Empty(t, args.PredecessorAddr)

	args = StabilizeArgs{}
	require.NoError(t, NewStabilize(&NodeAddress{ID: 0, Addr: "127.0.0.1:1"}).Decode(&args))
	require.NotNil(t, args.PredecessorID)
	assert.Equal(t, uint64(0), *args.PredecessorID)
	assert.Equal(t, "127.0.0.1:1", args.PredecessorAddr)
}

func TestMessage_DecodeKeyArgs(t *testing.T) {
	var args KeyArgs
	require.NoError(t, NewPut("k", []byte("v"), "127.0.0.1:9").Decode(&args))
	assert.Equal(t, KeyArgs{Key: "k", Value: []byte("v"), From: "127.0.0.1:9"}, args)

	// text values are accepted from loosely typed peers
	msg := &Message{Method: MethodPut, Args: map[string]any{"key": "k", "value": "text"}}
	args = KeyArgs{}
	require.NoError(t, msg.Decode(&args))
	assert.Equal(t, []byte("text"), args.Value)
	assert.Empty(t, args.From)
}

func TestMessage_DecodeErrors(t *testing.T) {
	msg := &Message{Method: MethodSuccessor, Args: map[string]any{"id": "abc"}}
	var args LookupArgs
	err := msg.Decode(&args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUCCESSOR")
}

func TestMessage_Constructors(t *testing.T) {
	self := NodeAddress{ID: 7, Addr: "127.0.0.1:7"}

	tests := []struct {
		msg    *Message
		method string
		keys   []string
	}{
		{NewJoinRequest(self), MethodJoinReq, []string{"addr", "id"}},
		{NewJoinReply(self), MethodJoinRep, []string{"successor_id", "successor_addr"}},
		{NewNotify(self), MethodNotify, []string{"predecessor_id", "predecessor_addr"}},
		{NewPredecessorRequest(), MethodPredecessor, []string{}},
		{NewStabilize(&self), MethodStabilize, []string{"predecessor_id", "predecessor_addr"}},
		{NewLookup(8, self.Addr), MethodSuccessor, []string{"id", "from"}},
		{NewLookupReply(8, self), MethodSuccessorRep, []string{"req_id", "successor_id", "successor_addr"}},
		{NewPut("k", []byte("v"), self.Addr), MethodPut, []string{"key", "value", "from"}},
		{NewPut("k", []byte("v"), ""), MethodPut, []string{"key", "value"}},
		{NewGet("k", self.Addr), MethodGet, []string{"key", "from"}},
		{NewAck("k", []byte("v")), MethodAck, []string{"key", "value"}},
		{NewAck("k", nil), MethodAck, []string{"key"}},
		{NewNack("k"), MethodNack, []string{"key"}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.method, tt.msg.Method)
			keys := make([]string, 0, len(tt.msg.Args))
			for k := range tt.msg.Args {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.keys, keys)
		})
	}
}

func TestMessage_Clone(t *testing.T) {
	msg := &Message{Method: MethodJoinReq, Args: map[string]any{"id": 1}, Sender: "127.0.0.1:1"}
	c := msg.Clone()
	assert.Equal(t, msg.Method, c.Method)
	assert.Equal(t, msg.Args, c.Args)
	assert.Empty(t, c.Sender)
}
