package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protoCodec struct{}

// Proto returns a protobuf binary codec. Values must implement proto.Message.
func Proto() Codec { return protoCodec{} }

func (protoCodec) ContentType() string { return ContentTypeProto }

func (protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}
