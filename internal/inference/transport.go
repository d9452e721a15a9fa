package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// maxResponseBytes bounds how much of a reply body is read.
const maxResponseBytes = 1 << 20

// Payload is one encoded frame on its way to the service.
type Payload struct {
	Seq       uint64
	RequestID string
	Image     []byte
}

// Transport performs one round trip to the inference service.
// Implementations return *Error values so failures keep their kind.
type Transport interface {
	Detect(ctx context.Context, p Payload) (*Response, error)
}

// HTTPTransport posts frames as a form-encoded base64 field, the shape the
// prediction service expects.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport posting to endpoint. A nil client selects
// a client without its own timeout; deadlines come from the request context.
func NewHTTPTransport(endpoint string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{endpoint: endpoint, client: client}
}

// Detect implements Transport.
func (t *HTTPTransport) Detect(ctx context.Context, p Payload) (*Response, error) {
	form := url.Values{}
	form.Set("img_data", base64.StdEncoding.EncodeToString(p.Image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, newError(KindTransport, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if p.RequestID != "" {
		req.Header.Set("X-Request-ID", p.RequestID)
	}
	req.Header.Set("X-Frame-Seq", strconv.FormatUint(p.Seq, 10))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, newError(KindTransport, "post frame", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(KindTransport, "read response", err)
	}

	var out Response
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The service answers an empty frame with an error body; keep that signal
		// even when it comes with a client error status.
		if decodeErr == nil && out.IsNoFace() {
			return &out, nil
		}
		return nil, newError(KindTransport, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if decodeErr != nil {
		return nil, newError(KindDecode, "parse response", decodeErr)
	}

	return &out, nil
}
