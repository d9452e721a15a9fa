package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransport_Detect(t *testing.T) {
	image := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}

	var gotImage []byte
	var gotRequestID, gotSeq, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotSeq = r.Header.Get("X-Frame-Seq")

		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotImage, _ = base64.StdEncoding.DecodeString(r.PostForm.Get("img_data"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"x":10,"y":20,"w":30,"h":40,"emotion":"surprise"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, srv.Client())
	resp, err := tr.Detect(context.Background(), Payload{Seq: 16, RequestID: "req-1", Image: image})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if string(gotImage) != string(image) {
		t.Errorf("server received %v, want %v", gotImage, image)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotRequestID != "req-1" {
		t.Errorf("X-Request-ID = %q, want req-1", gotRequestID)
	}
	if gotSeq != "16" {
		t.Errorf("X-Frame-Seq = %q, want 16", gotSeq)
	}

	if resp.Emotion == nil || *resp.Emotion != "surprise" {
		t.Errorf("Emotion = %v, want surprise", resp.Emotion)
	}
	if resp.X == nil || *resp.X != 10 || *resp.H != 40 {
		t.Errorf("unexpected box in %+v", resp)
	}
}

func TestHTTPTransport_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		noFace  bool
		wantErr bool
	}{
		{name: "no face on 200", status: http.StatusOK, body: `{"error":"No face detected"}`, noFace: true},
		{name: "no face on 400", status: http.StatusBadRequest, body: `{"error":"No face detected"}`, noFace: true},
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, kind: KindTransport, wantErr: true},
		{name: "not found html", status: http.StatusNotFound, body: `<html></html>`, kind: KindTransport, wantErr: true},
		{name: "malformed json", status: http.StatusOK, body: `{"x":`, kind: KindDecode, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewHTTPTransport(srv.URL, nil).Detect(context.Background(), Payload{Seq: 1})

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Detect() error = %v", err)
				}
				if resp.IsNoFace() != tt.noFace {
					t.Errorf("IsNoFace() = %v, want %v", resp.IsNoFace(), tt.noFace)
				}
				return
			}

			var ierr *Error
			if !errors.As(err, &ierr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if ierr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ierr.Kind, tt.kind)
			}
		})
	}
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(url, nil).Detect(context.Background(), Payload{Seq: 1})

	var ierr *Error
	if !errors.As(err, &ierr) || ierr.Kind != KindTransport {
		t.Fatalf("Detect() error = %v, want transport error", err)
	}
}

func TestHTTPTransport_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(srv.URL, nil).Detect(ctx, Payload{Seq: 1})
	if err == nil {
		t.Fatal("expected error after deadline")
	}
	if got := classify(ctx, err); got.Kind != KindTimeout {
		t.Errorf("classify() kind = %s, want timeout", got.Kind)
	}
}
