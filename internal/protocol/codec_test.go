package protocol

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"pgregory.net/rapid"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Login("alice")))
	require.NoError(t, Write(&buf, Finish()))

	r := bufio.NewReader(&buf)
	got, err := Read(r)
	require.NoError(t, err)
	assert.Equal(t, Login("alice"), got)

	got, err = Read(r)
	require.NoError(t, err)
	assert.Equal(t, Finish(), got)

	_, err = Read(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Message{Type: "PING"}))

	got, err := Read(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, Type("PING"), got.Type)
	assert.False(t, got.ExpectsReply())
}

func TestReadFrameTooLarge(t *testing.T) {
	frame := protowire.AppendVarint(nil, MaxFrameSize+1)
	frame = append(frame, make([]byte, MaxFrameSize+1)...)

	_, err := Read(bufio.NewReader(bytes.NewReader(frame)))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Login("alice")))
	truncated := buf.Bytes()[:buf.Len()-2]

	_, err := Read(bufio.NewReader(bytes.NewReader(truncated)))
	require.Error(t, err)
}

func TestExpectsReply(t *testing.T) {
	assert.True(t, Login("a").ExpectsReply())
	assert.False(t, Logoff("a").ExpectsReply())
	assert.False(t, Finish().ExpectsReply())
}

func TestPropertyLoginIdentitySurvivesFraming(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		identity := rapid.StringMatching(`[a-zA-Z0-9_ .-]{0,48}`).Draw(t, "identity")
		var buf bytes.Buffer
		if err := Write(&buf, Login(identity)); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := Read(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Type != TypeLoginRequest || got.Payload != identity {
			t.Fatalf("got %+v, want login %q", got, identity)
		}
	})
}
