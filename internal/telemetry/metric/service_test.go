package metric

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

func TestService(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest(http.MethodGet, http.StatusNotFound, time.Millisecond)
	svc := Service(r, "")

	tests := []struct {
		name       string
		method     string
		path       string
		wantNil    bool
		wantStatus int
	}{
		{"other path", http.MethodGet, "/index.html", true, 0},
		{"get", http.MethodGet, "/metrics", false, http.StatusOK},
		{"head", http.MethodHead, "/metrics", false, http.StatusOK},
		{"post", http.MethodPost, "/metrics", false, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &domain.Request{Method: tt.method, Path: tt.path, Header: domain.Header{}}
			resp, err := svc.HandleRequest(context.Background(), req, nil)
			if err != nil {
				t.Fatalf("HandleRequest() error = %v", err)
			}
			if tt.wantNil {
				if resp != nil {
					t.Errorf("response = %+v, want nil", resp)
				}
				return
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestService_Body(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest(http.MethodGet, http.StatusNotFound, time.Millisecond)

	req := &domain.Request{Method: http.MethodGet, Path: "/stats", Header: domain.NewHeader("accept", "text/plain")}
	resp, err := Service(r, "/stats").HandleRequest(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}
	if ct := resp.Header.Get("content-type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content-type = %q", ct)
	}
	if resp.Header.Get("cache-control") != "no-store" {
		t.Error("metrics must not be cached")
	}
	body, err := resp.Body.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !strings.Contains(string(body), `devserve_http_requests_total{method="GET",status="404"} 1`) {
		t.Errorf("body missing request counter:\n%s", body)
	}
}
