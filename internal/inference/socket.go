package inference

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/vmihailenco/msgpack/v5"
)

// maxSocketFrame bounds the reply length accepted from the socket service.
const maxSocketFrame = 1 << 20

// socketRequest is the msgpack body sent over the unix socket.
type socketRequest struct {
	Seq       uint64 `msgpack:"seq"`
	RequestID string `msgpack:"id"`
	Image     []byte `msgpack:"img"`
}

// SocketTransport talks to a co-located inference process over a unix socket.
// Each message is a 4-byte big-endian length followed by a msgpack body.
type SocketTransport struct {
	path string
	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewSocketTransport creates a transport dialing the unix socket at path.
func NewSocketTransport(path string) *SocketTransport {
	var d net.Dialer
	return &SocketTransport{path: path, dial: d.DialContext}
}

// Detect implements Transport. One connection is used per request.
func (t *SocketTransport) Detect(ctx context.Context, p Payload) (*Response, error) {
	conn, err := t.dial(ctx, "unix", t.path)
	if err != nil {
		return nil, newError(KindTransport, "dial inference socket", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, newError(KindTransport, "set connection deadline", err)
		}
	}

	body, err := msgpack.Marshal(socketRequest{Seq: p.Seq, RequestID: p.RequestID, Image: p.Image})
	if err != nil {
		return nil, newError(KindTransport, "encode request", err)
	}

	if err := writeFrame(conn, body); err != nil {
		return nil, newError(KindTransport, "write request", err)
	}

	reply, err := readFrame(conn)
	if err != nil {
		return nil, newError(KindTransport, "read response", err)
	}

	var out Response
	if err := msgpack.Unmarshal(reply, &out); err != nil {
		return nil, newError(KindDecode, "parse response", err)
	}
	return &out, nil
}

func writeFrame(w io.Writer, body []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > maxSocketFrame {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
