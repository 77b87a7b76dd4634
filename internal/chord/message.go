package chord

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Protocol methods.
const (
	MethodJoinReq      = "JOIN_REQ"
	MethodJoinRep      = "JOIN_REP"
	MethodNotify       = "NOTIFY"
	MethodPredecessor  = "PREDECESSOR"
	MethodStabilize    = "STABILIZE"
	MethodSuccessor    = "SUCCESSOR"
	MethodSuccessorRep = "SUCCESSOR_REP"
	MethodPut          = "PUT"
	MethodGet          = "GET"
	MethodAck          = "ACK"
	MethodNack         = "NACK"
)

// Methods lists every protocol method.
var Methods = []string{
	MethodJoinReq, MethodJoinRep, MethodNotify, MethodPredecessor, MethodStabilize,
	MethodSuccessor, MethodSuccessorRep, MethodPut, MethodGet, MethodAck, MethodNack,
}

// Message is one datagram exchanged between nodes and clients.
// Sender is stamped by the transport on receipt. UDP uses the datagram's source
// address. gRPC pairs the connection's peer host with the listen port named in
// the payload.
type Message struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args"`
	Sender string         `json:"sender,omitempty"`
}

// Decode maps the message arguments into out, one of the *Args structs below.
// Numeric arguments are accepted in any width the codec produced.
func (m *Message) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "build args decoder")
	}
	return errors.Wrapf(dec.Decode(m.Args), "decode %s args", m.Method)
}

// Clone returns a shallow copy suitable for forwarding. The sender is cleared.
func (m *Message) Clone() *Message {
	return &Message{Method: m.Method, Args: m.Args}
}

// JoinArgs carries JOIN_REQ.
type JoinArgs struct {
	Addr string `mapstructure:"addr"`
	ID   uint64 `mapstructure:"id"`
}

// SuccessorArgs carries JOIN_REP.
type SuccessorArgs struct {
	SuccessorID   uint64 `mapstructure:"successor_id"`
	SuccessorAddr string `mapstructure:"successor_addr"`
}

// NotifyArgs carries NOTIFY.
type NotifyArgs struct {
	PredecessorID   uint64 `mapstructure:"predecessor_id"`
	PredecessorAddr string `mapstructure:"predecessor_addr"`
}

// StabilizeArgs carries STABILIZE. PredecessorID is nil when the responder
// has no predecessor.
type StabilizeArgs struct {
	PredecessorID   *uint64 `mapstructure:"predecessor_id"`
	PredecessorAddr string  `mapstructure:"predecessor_addr"`
}

// LookupArgs carries SUCCESSOR.
type LookupArgs struct {
	ID   uint64 `mapstructure:"id"`
	From string `mapstructure:"from"`
}

// LookupReplyArgs carries SUCCESSOR_REP.
type LookupReplyArgs struct {
	ReqID         uint64 `mapstructure:"req_id"`
	SuccessorID   uint64 `mapstructure:"successor_id"`
	SuccessorAddr string `mapstructure:"successor_addr"`
}

// KeyArgs carries PUT, GET, ACK and NACK.
type KeyArgs struct {
	Key   string `mapstructure:"key"`
	Value []byte `mapstructure:"value"`
	From  string `mapstructure:"from"`
}

// NewJoinRequest builds JOIN_REQ for joiner.
func NewJoinRequest(joiner NodeAddress) *Message {
	return &Message{Method: MethodJoinReq, Args: map[string]any{
		"addr": joiner.Addr,
		"id":   joiner.ID,
	}}
}

// NewJoinReply builds JOIN_REP naming the joiner's successor.
func NewJoinReply(successor NodeAddress) *Message {
	return &Message{Method: MethodJoinRep, Args: map[string]any{
		"successor_id":   successor.ID,
		"successor_addr": successor.Addr,
	}}
}

// NewNotify builds NOTIFY announcing self as a predecessor candidate.
func NewNotify(self NodeAddress) *Message {
	return &Message{Method: MethodNotify, Args: map[string]any{
		"predecessor_id":   self.ID,
		"predecessor_addr": self.Addr,
	}}
}

// NewPredecessorRequest builds PREDECESSOR.
func NewPredecessorRequest() *Message {
	return &Message{Method: MethodPredecessor, Args: map[string]any{}}
}

// NewStabilize builds STABILIZE carrying predecessor, which may be nil.
func NewStabilize(predecessor *NodeAddress) *Message {
	args := map[string]any{
		"predecessor_id":   nil,
		"predecessor_addr": nil,
	}
	if predecessor != nil {
		args["predecessor_id"] = predecessor.ID
		args["predecessor_addr"] = predecessor.Addr
	}
	return &Message{Method: MethodStabilize, Args: args}
}

// NewLookup builds SUCCESSOR for target; the answer goes to from.
func NewLookup(target uint64, from string) *Message {
	return &Message{Method: MethodSuccessor, Args: map[string]any{
		"id":   target,
		"from": from,
	}}
}

// NewLookupReply builds SUCCESSOR_REP.
func NewLookupReply(target uint64, successor NodeAddress) *Message {
	return &Message{Method: MethodSuccessorRep, Args: map[string]any{
		"req_id":         target,
		"successor_id":   successor.ID,
		"successor_addr": successor.Addr,
	}}
}

// NewPut builds PUT. An empty from means "reply to the sender".
func NewPut(key string, value []byte, from string) *Message {
	args := map[string]any{"key": key, "value": value}
	if from != "" {
		args["from"] = from
	}
	return &Message{Method: MethodPut, Args: args}
}

// NewGet builds GET. An empty from means "reply to the sender".
func NewGet(key, from string) *Message {
	args := map[string]any{"key": key}
	if from != "" {
		args["from"] = from
	}
	return &Message{Method: MethodGet, Args: args}
}

// NewAck builds ACK. value is nil for a PUT acknowledgement.
func NewAck(key string, value []byte) *Message {
	args := map[string]any{"key": key}
	if value != nil {
		args["value"] = value
	}
	return &Message{Method: MethodAck, Args: args}
}

// NewNack builds NACK.
func NewNack(key string) *Message {
	return &Message{Method: MethodNack, Args: map[string]any{"key": key}}
}
