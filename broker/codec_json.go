package broker

import "encoding/json"

// JSONCodec encodes/decodes broker messages as JSON. JSON flattens
// payload integers into float64 on the way back; the inbound coercion
// regime of the argument pipeline restores them.
type JSONCodec struct{}

func (c *JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *JSONCodec) Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }
