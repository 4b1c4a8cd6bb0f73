package control

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStream(t *testing.T) {
	// GIVEN
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := NewChannel()
	go echoWorker(ctx, ch)

	server, clientConn := net.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- ServeStream(ctx, server, ch)
	}()
	client := NewClient(clientConn)

	// WHEN
	first, errFirst := client.Do(Read(3))
	second, errSecond := client.Do(Command{Op: OpExit})
	require.NoError(t, clientConn.Close())

	// THEN
	require.NoError(t, errFirst)
	require.NoError(t, errSecond)
	assert.Equal(t, uint32(0x01000003), first)
	assert.Equal(t, uint32(0x07000000), second)
	assert.NoError(t, <-served)
}

func TestServeStream_WorkerGone(t *testing.T) {
	// GIVEN
	ch := NewChannel()
	ch.Close()
	input := bytes.NewBuffer([]byte{0x01, 0x00, 0x00, 0x00})
	rw := struct {
		io.Reader
		io.Writer
	}{input, io.Discard}

	// WHEN
	err := ServeStream(context.Background(), rw, ch)

	// THEN
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadWord(t *testing.T) {
	// WHEN
	word, err := readWord(bytes.NewReader([]byte{0xDE, 0xAD, 0xBE, 0xEF}))

	// THEN
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), word)

	_, err = readWord(bytes.NewReader([]byte{0x01, 0x02}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = readWord(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

// chunkedReader returns its chunks one per read, an empty chunk standing
// for a read timeout, and io.EOF once all are consumed.
type chunkedReader struct {
	chunks [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestServeStream_PartialWordAcrossTimeout(t *testing.T) {
	// GIVEN
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := NewChannel()
	go echoWorker(ctx, ch)

	input := &chunkedReader{chunks: [][]byte{
		{0x01, 0x00},
		{},
		{0x00, 0x03},
		{},
		{0x02, 0x00, 0x00, 0x01},
	}}
	output := &bytes.Buffer{}
	rw := struct {
		io.Reader
		io.Writer
	}{input, output}

	// WHEN
	err := ServeStream(ctx, rw, ch)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00, 0x01}, output.Bytes())
}
