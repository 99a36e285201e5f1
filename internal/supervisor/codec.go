package supervisor

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName keeps the content-subtype at application/grpc+proto so the
// supervisor sees ordinary protobuf traffic.
const codecName = "proto"

type wireMessage interface {
	appendWire(b []byte) []byte
	unmarshalWire(b []byte) error
}

type wireCodec struct{}

var _ encoding.Codec = wireCodec{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("supervisor codec: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("supervisor codec: cannot unmarshal into %T", v)
	}
	if err := m.unmarshalWire(data); err != nil {
		return fmt.Errorf("supervisor codec: %T: %w", v, err)
	}
	return nil
}

func (wireCodec) Name() string { return codecName }

// CallCodec must be passed on every client call made with the terminal
// service message types.
func CallCodec() grpc.CallOption { return grpc.ForceCodec(wireCodec{}) }

// ServerCodec installs the terminal service codec on a grpc.Server.
func ServerCodec() grpc.ServerOption { return grpc.ForceServerCodec(wireCodec{}) }
