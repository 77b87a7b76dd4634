package transport

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/zde37/chordkv/internal/chord"
	"github.com/zde37/chordkv/pkg"
)

// envelope is the wire form of a chord.Message.
type envelope struct {
	Method string         `msgpack:"method"`
	Args   map[string]any `msgpack:"args"`
	Sender string         `msgpack:"sender,omitempty"`
}

// Encode serializes msg as a msgpack datagram.
func Encode(msg *chord.Message) ([]byte, error) {
	if msg == nil || msg.Method == "" {
		return nil, errors.New("message without method")
	}
	data, err := msgpack.Marshal(&envelope{
		Method: msg.Method,
		Args:   msg.Args,
		Sender: msg.Sender,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", msg.Method)
	}
	return data, nil
}

// Decode parses a datagram. An empty payload reads as pkg.ErrTimeout, as if
// nothing had arrived; anything undecodable is pkg.ErrMalformedPayload.
func Decode(data []byte) (*chord.Message, error) {
	if len(data) == 0 {
		return nil, pkg.ErrTimeout
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(pkg.ErrMalformedPayload, "%v", err)
	}
	if env.Method == "" {
		return nil, errors.Wrap(pkg.ErrMalformedPayload, "missing method")
	}
	if env.Args == nil {
		env.Args = map[string]any{}
	}

	return &chord.Message{Method: env.Method, Args: env.Args, Sender: env.Sender}, nil
}

// stamp returns a copy of msg carrying sender.
func stamp(msg *chord.Message, sender string) *chord.Message {
	return &chord.Message{Method: msg.Method, Args: msg.Args, Sender: sender}
}
