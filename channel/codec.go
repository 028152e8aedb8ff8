package channel

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/coder/websocket"
	"github.com/fxamacker/cbor/v2"

	"github.com/hazyhaar/booster/message"
)

// Websocket subprotocols spoken by remote endpoints.
const (
	SubprotocolJSON = "boost.v1+json"
	SubprotocolCBOR = "boost.v1+cbor"
)

// Codec frames messages for a websocket connection.
type Codec interface {
	Subprotocol() string
	MessageType() websocket.MessageType
	Marshal(msg message.Message) ([]byte, error)
	Unmarshal(data []byte) (message.Message, error)
}

var (
	// JSON frames messages as websocket text frames.
	JSON Codec = jsonCodec{}
	// CBOR frames messages as websocket binary frames in deterministic CBOR.
	CBOR Codec = newCBORCodec()
)

// Subprotocols lists the supported subprotocols, preferred first.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolCBOR}
}

// CodecFor returns the codec for a negotiated subprotocol. An empty
// subprotocol selects JSON.
func CodecFor(subprotocol string) (Codec, bool) {
	switch subprotocol {
	case "", SubprotocolJSON:
		return JSON, true
	case SubprotocolCBOR:
		return CBOR, true
	}
	return nil, false
}

// CodecByName maps a short name ("json", "cbor") to a codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("channel: unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string                { return SubprotocolJSON }
func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) Marshal(msg message.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte) (message.Message, error) {
	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message.Message{}, fmt.Errorf("channel: decode json frame: %w", err)
	}
	if msg.Name == "" {
		return message.Message{}, fmt.Errorf("channel: decode json frame: missing name")
	}
	return msg, nil
}

// cborFrame is the CBOR wire form. The payload stays JSON bytes so both
// codecs carry identical payload semantics.
type cborFrame struct {
	Name   string `cbor:"1,keyasint"`
	Source string `cbor:"2,keyasint,omitempty"`
	Data   []byte `cbor:"3,keyasint,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("channel: cbor encoder: %v", err))
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("channel: cbor decoder: %v", err))
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Subprotocol() string                { return SubprotocolCBOR }
func (cborCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (c cborCodec) Marshal(msg message.Message) ([]byte, error) {
	return c.enc.Marshal(cborFrame{
		Name:   string(msg.Name),
		Source: msg.Source,
		Data:   msg.Data,
	})
}

func (c cborCodec) Unmarshal(data []byte) (message.Message, error) {
	var f cborFrame
	if err := c.dec.Unmarshal(data, &f); err != nil {
		return message.Message{}, fmt.Errorf("channel: decode cbor frame: %w", err)
	}
	if f.Name == "" {
		return message.Message{}, fmt.Errorf("channel: decode cbor frame: missing name")
	}
	return message.Message{
		Name:   message.Name(f.Name),
		Source: f.Source,
		Data:   json.RawMessage(f.Data),
	}, nil
}
