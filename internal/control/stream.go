package control

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/markusressel/qadc2go/internal/ui"
	"go.bug.st/serial"
)

const wordSize = 4

var ErrTimeout = errors.New("timeout waiting for response")

// wordReader assembles big endian words from a stream. A read returning no
// data without an error is treated as a timeout, which is how serial ports
// report one. Bytes of a partial word are kept across timeouts so the
// stream stays aligned to word boundaries.
type wordReader struct {
	r    io.Reader
	buf  [wordSize]byte
	read int
}

func (w *wordReader) next() (uint32, error) {
	for w.read < wordSize {
		n, err := w.r.Read(w.buf[w.read:])
		w.read += n
		if err != nil {
			if errors.Is(err, io.EOF) && w.read > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if n == 0 {
			return 0, ErrTimeout
		}
	}
	w.read = 0
	return binary.BigEndian.Uint32(w.buf[:]), nil
}

func readWord(r io.Reader) (uint32, error) {
	w := wordReader{r: r}
	return w.next()
}

func writeWord(w io.Writer, word uint32) error {
	var buf [wordSize]byte
	binary.BigEndian.PutUint32(buf[:], word)
	_, err := w.Write(buf[:])
	return err
}

// ServeStream forwards command words read from rw to the worker and writes
// back the replies. It returns nil when the stream ends and ErrClosed
// when the worker has stopped.
func ServeStream(ctx context.Context, rw io.ReadWriter, ch *Channel) error {
	words := &wordReader{r: rw}
	for {
		word, err := words.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrTimeout) {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			return fmt.Errorf("read command: %w", err)
		}

		cmd := Decode(word)
		ui.Debug("Received command %s (0x%08x)", cmd, word)
		response, err := ch.Send(ctx, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := writeWord(rw, response); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Client sends commands over a stream to a remote ServeStream.
type Client struct {
	rw    io.ReadWriter
	words *wordReader
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw, words: &wordReader{r: rw}}
}

// Do sends one command and returns the response word.
func (c *Client) Do(cmd Command) (uint32, error) {
	if err := writeWord(c.rw, cmd.Word()); err != nil {
		return 0, fmt.Errorf("write command: %w", err)
	}
	response, err := c.words.next()
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	return response, nil
}

// OpenSerial opens a serial port for the control protocol. A positive
// readTimeout makes reads give up after that duration.
func OpenSerial(name string, baudRate int, readTimeout time.Duration) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
		}
	}
	return port, nil
}
