package broker

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes/decodes broker messages as MessagePack. Unlike
// JSON it keeps payload integers intact across the wire.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (c *MsgpackCodec) Decode(data []byte) (*Message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	// Without loose decoding small payload integers come back as int8.
	dec.UseLooseInterfaceDecoding(true)

	var m Message
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
