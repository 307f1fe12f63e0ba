package codec

import (
	"bytes"
	"encoding/json"

	"github.com/valyala/bytebufferpool"
)

type jsonCodec struct{}

// JSON returns a JSON codec (RFC 8259). Content-Type: application/json
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return ContentTypeJSON }

// Marshal encodes through a pooled buffer and returns a private copy of the
// bytes, without the trailing newline json.Encoder appends.
func (jsonCodec) Marshal(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.B, []byte{'\n'})
	return append([]byte(nil), out...), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
