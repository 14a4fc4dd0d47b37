// Package grpcconn carries rpc services over grpc-go. Messages cross the
// transport as the bytes produced by the wire codec; grpc never sees the
// message types.
package grpcconn

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is registered as the content subtype so peers using the standard
// protobuf codec interoperate.
const Name = "proto"

type rawCodec struct{}

var _ encoding.Codec = rawCodec{}

func (rawCodec) Name() string { return Name }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, fmt.Errorf("grpcconn: cannot marshal %T", v)
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("grpcconn: cannot unmarshal into %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}
