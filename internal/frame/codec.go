package frame

import (
	"bytes"
	"encoding/base64"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/nirspec-go/internal/errors"
)

// rxBufferSize bounds how many undelivered bytes one peer may buffer.
const rxBufferSize = 1 << 20

// Codec frames and unframes the wire byte stream. Each logical frame is one
// line terminated by a single LF byte. When an envelope is set, each line
// body is the base64 encoding of the sealed message so ciphertext bytes can
// never collide with the delimiter.
//
// Codec is not safe for concurrent use; each connection owns one.
type Codec struct {
	rx  *ringbuffer.RingBuffer
	env *Envelope
}

// NewCodec creates a codec. env may be nil for plaintext operation.
func NewCodec(env *Envelope) *Codec {
	return &Codec{
		rx:  ringbuffer.New(rxBufferSize),
		env: env,
	}
}

// Encrypted reports whether the codec applies the envelope.
func (c *Codec) Encrypted() bool {
	return c.env != nil
}

// Encode converts one frame body into its wire form, LF terminator included.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	body := payload
	if c.env != nil {
		sealed, err := c.env.Seal(payload)
		if err != nil {
			return nil, err
		}
		body = make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
		base64.StdEncoding.Encode(body, sealed)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// Feed appends received bytes to the receive buffer. Residual bytes of an
// incomplete frame persist across calls.
func (c *Codec) Feed(data []byte) error {
	if len(data) > c.rx.Free() {
		return errors.Newf("receive buffer overflow: %d bytes pending", c.rx.Length()).
			Component("frame").
			Category(errors.CategoryProtocol).
			Build()
	}
	_, err := c.rx.Write(data)
	return err
}

// Next returns the next complete frame body, or ok=false when no complete
// frame is buffered. Empty frames are skipped. A frame that fails envelope
// authentication is dropped and its error returned; the stream continues.
func (c *Codec) Next() (body []byte, ok bool, err error) {
	for {
		buffered := c.rx.Bytes(nil)
		idx := bytes.IndexByte(buffered, '\n')
		if idx < 0 {
			return nil, false, nil
		}

		line := make([]byte, idx+1)
		if _, err := c.rx.Read(line); err != nil {
			return nil, false, err
		}
		line = bytes.TrimRight(line[:idx], "\r")
		if len(line) == 0 {
			continue
		}

		if c.env == nil {
			return line, true, nil
		}

		sealed := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
		n, decErr := base64.StdEncoding.Decode(sealed, line)
		if decErr != nil {
			return nil, true, errors.New(ErrAuthentication).
				Component("frame").
				Category(errors.CategoryAuth).
				Context("reason", "bad base64").
				Build()
		}
		plain, openErr := c.env.Open(sealed[:n])
		if openErr != nil {
			return nil, true, openErr
		}
		return plain, true, nil
	}
}
