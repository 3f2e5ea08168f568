package grpc

import (
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype the JSON codec registers under.
const CodecName = "json"

var jsonAPI = sonic.ConfigStd

// JSONCodec marshals gRPC messages as JSON. Messages are plain Go structs
// with json tags; there is no generated protobuf code involved.
type JSONCodec struct{}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// Marshal encodes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpc/codec: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes JSON data into v.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := jsonAPI.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpc/codec: unmarshal %T: %w", v, err)
	}
	return nil
}

// Name returns CodecName.
func (JSONCodec) Name() string { return CodecName }

// CallOption forces the JSON codec on a call.
func CallOption() grpc.CallOption {
	return grpc.ForceCodec(JSONCodec{})
}

// ServerOption forces the JSON codec on every RPC a server handles.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(JSONCodec{})
}
