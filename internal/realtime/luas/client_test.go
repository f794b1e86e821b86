package luas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStopURL(t *testing.T) {
	c := NewClient(ClientOptions{})
	got, err := c.StopURL("42")
	if err != nil {
		t.Fatalf("StopURL failed: %v", err)
	}
	if got != DefaultBaseURL+"?id=42" {
		t.Errorf("StopURL = %q", got)
	}
}

func TestFetchStop(t *testing.T) {
	page := forecastPage([]string{"Direction", "Destination", "Time"}, [][]string{
		{"Inbound", "Broombridge", "00:03"},
		{"Outbound", "Sandyford", "00:07"},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1":
			w.Write([]byte(page))
		case "2":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte("<p>unknown stop</p>"))
		}
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: 5 * time.Second})
	ctx := context.Background()

	snap, err := c.FetchStop(ctx, "1")
	if err != nil {
		t.Fatalf("FetchStop(1) failed: %v", err)
	}
	if snap.StopID != "1" || snap.RowCount != 2 || len(snap.Rows) != 2 {
		t.Errorf("snapshot = {%s %d %d}, expected {1 2 2}", snap.StopID, snap.RowCount, len(snap.Rows))
	}
	if snap.CapturedAt.IsZero() {
		t.Error("CapturedAt is zero")
	}

	_, err = c.FetchStop(ctx, "2")
	var ff *FetchFailure
	if !errors.As(err, &ff) {
		t.Fatalf("expected *FetchFailure, got %v", err)
	}
	if ff.StopID != "2" || ff.StatusCode != http.StatusInternalServerError {
		t.Errorf("FetchFailure = {%s %d}", ff.StopID, ff.StatusCode)
	}

	_, err = c.FetchStop(ctx, "3")
	var pf *ParseFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected *ParseFailure, got %v", err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), "5")

	var ff *FetchFailure
	if !errors.As(err, &ff) {
		t.Fatalf("expected *FetchFailure, got %v", err)
	}
	if ff.StatusCode != 0 || ff.Cause == nil {
		t.Errorf("FetchFailure = %+v, expected transport cause", ff)
	}
}

func TestFetchRateLimitCanceled(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001, Burst: 1})
	// drain the single burst token
	c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "1")
	var ff *FetchFailure
	if !errors.As(err, &ff) {
		t.Fatalf("expected *FetchFailure, got %v", err)
	}
}

func TestFetchRejectsOversizedPage(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"at the cap", maxBodyBytes, false},
		{"over the cap", maxBodyBytes + 1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Repeat("a", tc.size)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: 5 * time.Second})
			got, err := c.Fetch(context.Background(), "1")
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Fetch returned error: %v", err)
				}
				if len(got) != tc.size {
					t.Errorf("got %d bytes, expected %d", len(got), tc.size)
				}
				return
			}

			var ff *FetchFailure
			if !errors.As(err, &ff) {
				t.Fatalf("expected *FetchFailure, got %v", err)
			}
			if !errors.Is(err, ErrPageTooLarge) {
				t.Errorf("expected ErrPageTooLarge, got %v", err)
			}
		})
	}
}
