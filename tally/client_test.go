package tally

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(serverURL string) *Client {
	return &Client{
		endpoint:   serverURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestClientSend(t *testing.T) {
	var gotContentType, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		_, _ = w.Write([]byte("<ENVELOPE><HEADER><STATUS>1</STATUS></HEADER></ENVELOPE>"))
	}))
	defer ts.Close()

	response, err := testClient(ts.URL).Send(context.Background(), "<ENVELOPE></ENVELOPE>")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotContentType != "text/xml" {
		t.Errorf("content type = %q, want text/xml", gotContentType)
	}
	if gotBody != "<ENVELOPE></ENVELOPE>" {
		t.Errorf("request body = %q", gotBody)
	}
	if response == "" {
		t.Error("response body must not be empty")
	}
}

func TestClientSendHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := testClient(ts.URL).Send(context.Background(), "<ENVELOPE></ENVELOPE>")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error %T, want TransportError", err)
	}
	if transportErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", transportErr.Status)
	}
}

func TestClientSendConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	_, err := testClient(ts.URL).Send(context.Background(), "<ENVELOPE></ENVELOPE>")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error %T, want TransportError", err)
	}
	if transportErr.Status != 0 {
		t.Errorf("network failure must not carry an HTTP status, got %d", transportErr.Status)
	}
}
