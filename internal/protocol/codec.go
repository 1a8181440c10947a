package protocol

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxFrameSize is the largest encoded message accepted by Read.
const MaxFrameSize = 4096

// ErrFrameTooLarge is returned by Read when the peer announces a frame
// larger than MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

const (
	fieldType    = "type"
	fieldPayload = "payload"
)

// Write encodes m as a varint length-delimited protobuf Struct.
//
// Postcondition: Exactly one frame is written to w, or a non-nil error is returned.
func Write(w io.Writer, m Message) error {
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldType: structpb.NewStringValue(string(m.Type)),
	}}
	if m.Payload != "" {
		st.Fields[fieldPayload] = structpb.NewStringValue(m.Payload)
	}
	if _, err := protodelim.MarshalTo(w, st); err != nil {
		return fmt.Errorf("writing %s frame: %w", m.Type, err)
	}
	return nil
}

// Read decodes a single frame written by Write. Unknown or missing type
// tags are not an error; the caller decides how to treat them.
//
// Postcondition: Returns the decoded Message, io.EOF if r is exhausted
// before a frame starts, ErrFrameTooLarge, or another decode error.
func Read(r protodelim.Reader) (Message, error) {
	st := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{MaxSize: MaxFrameSize}
	if err := opts.UnmarshalFrom(r, st); err != nil {
		var tooLarge *protodelim.SizeTooLargeError
		if errors.As(err, &tooLarge) {
			return Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, tooLarge.Size)
		}
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("reading frame: %w", err)
	}

	return Message{
		Type:    Type(st.GetFields()[fieldType].GetStringValue()),
		Payload: st.GetFields()[fieldPayload].GetStringValue(),
	}, nil
}
