package classifier

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// #region json-codec

// codecName is the content-subtype requested on every call. The classifier
// service registers the matching codec on its side; both ends exchange
// plain JSON frames, so no protobuf codegen is needed for this service.
const codecName = "json"

// jsonCodec satisfies grpc encoding.Codec with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion json-codec
