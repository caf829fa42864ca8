package fileservice

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/operation"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
)

type recordingPusher struct {
	targets []string
}

func (p *recordingPusher) Push(target service.PushTarget) error {
	p.targets = append(p.targets, target.Path)
	return nil
}

type rejectingPusher struct{}

func (rejectingPusher) Push(service.PushTarget) error {
	return domain.ErrPushRejected.WithDetails("push window exhausted")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newService(t *testing.T, opts Options) *service.Service {
	t.Helper()
	fsvc, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = fsvc.Close() })
	return fsvc.Service()
}

func request(method, path string, header ...string) *domain.Request {
	p, q := domain.SplitTarget(path)
	return &domain.Request{
		ID:       domain.NewID(),
		Method:   method,
		Origin:   "http://localhost:8080",
		Path:     p,
		RawQuery: q,
		Header:   domain.NewHeader(header...),
		Op:       operation.Start(nil),
	}
}

func serve(t *testing.T, svc *service.Service, req *domain.Request, pusher service.Pusher) *domain.Response {
	t.Helper()
	defer req.Op.End()
	hc := service.NewHookContext(context.Background(), nil, nil, pusher)
	resp, err := svc.HandleRequest(context.Background(), req, hc)
	if err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}
	return resp
}

func body(t *testing.T, resp *domain.Response) string {
	t.Helper()
	b, err := resp.Body.Bytes()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("New() without root error = %v", err)
	}
	if _, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")}); !errors.Is(err, domain.ErrInvalidOption) {
		t.Errorf("New() with missing root error = %v", err)
	}
}

func TestFileService_Close(t *testing.T) {
	fsvc, err := New(Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := fsvc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := fsvc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	fsvc.Service().ServerStopped(service.StoppedInfo{})
}

func TestFileService_Handle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<h1>home</h1>")
	writeFile(t, dir, "app.js", "console.log(1)")
	writeFile(t, dir, "docs/index.html", "docs")
	writeFile(t, dir, "data.unknownext", "raw")
	svc := newService(t, Options{Root: dir})

	tests := []struct {
		name       string
		req        *domain.Request
		wantStatus int
		wantBody   string
		wantType   string
		wantHeader map[string]string
	}{
		{"root index", request("GET", "/"), http.StatusOK, "<h1>home</h1>", "text/html; charset=utf-8", nil},
		{"script", request("GET", "/app.js"), http.StatusOK, "console.log(1)", "text/javascript; charset=utf-8", nil},
		{"nested index", request("GET", "/docs/"), http.StatusOK, "docs", "", nil},
		{"directory redirect", request("GET", "/docs?x=1"), http.StatusMovedPermanently, "", "", map[string]string{"location": "/docs/?x=1"}},
		{"missing", request("GET", "/nope.css"), http.StatusNotFound, "Not Found", "", nil},
		{"traversal stays inside root", request("GET", "/../../etc/passwd"), http.StatusNotFound, "", "", nil},
		{"unknown type", request("GET", "/data.unknownext"), http.StatusOK, "raw", "application/octet-stream", nil},
		{"method not allowed", request("POST", "/app.js"), http.StatusMethodNotAllowed, "", "", map[string]string{"allow": "GET, HEAD"}},
		{"head", request("HEAD", "/app.js"), http.StatusOK, "", "", map[string]string{"content-length": "14"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(t, svc, tt.req, nil)

			if resp.Status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if tt.wantBody != "" {
				if got := body(t, resp); got != tt.wantBody {
					t.Errorf("body = %q, want %q", got, tt.wantBody)
				}
			} else {
				resp.Body.Discard()
			}
			if tt.wantType != "" && resp.Header.Get("content-type") != tt.wantType {
				t.Errorf("content-type = %q, want %q", resp.Header.Get("content-type"), tt.wantType)
			}
			for k, v := range tt.wantHeader {
				if got := resp.Header.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestFileService_Precompressed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "style.css", "body{}")
	writeFile(t, dir, "style.css.gz", "gzipped")
	writeFile(t, dir, "style.css.br", "brotli")
	svc := newService(t, Options{Root: dir})

	tests := []struct {
		name         string
		accept       string
		wantBody     string
		wantEncoding string
	}{
		{"no accept-encoding", "", "body{}", ""},
		{"gzip only", "gzip", "gzipped", "gzip"},
		{"brotli preferred", "gzip;q=0.5, br", "brotli", "br"},
		{"identity only", "identity", "body{}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.accept != "" {
				header = []string{"accept-encoding", tt.accept}
			}
			resp := serve(t, svc, request("GET", "/style.css", header...), nil)

			if got := body(t, resp); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if got := resp.Header.Get("content-encoding"); got != tt.wantEncoding {
				t.Errorf("content-encoding = %q, want %q", got, tt.wantEncoding)
			}
			if resp.Header.Get("content-type") != "text/css; charset=utf-8" {
				t.Errorf("content-type = %q", resp.Header.Get("content-type"))
			}
			if resp.Header.Get("vary") != "accept-encoding" {
				t.Error("missing vary: accept-encoding")
			}
		})
	}
}

func TestFileService_Push(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<link rel=stylesheet href=/style.css>")
	writeFile(t, dir, "style.css", "body{}")
	svc := newService(t, Options{Root: dir, Push: map[string][]string{"/": {"/style.css"}}})

	pusher := &recordingPusher{}
	resp := serve(t, svc, request("GET", "/"), pusher)
	resp.Body.Discard()

	if len(pusher.targets) != 1 || pusher.targets[0] != "/style.css" {
		t.Errorf("pushed = %v", pusher.targets)
	}

	pusher = &recordingPusher{}
	resp = serve(t, svc, request("HEAD", "/"), pusher)
	resp.Body.Discard()
	if len(pusher.targets) != 0 {
		t.Errorf("HEAD pushed %v", pusher.targets)
	}
}

func TestFileService_PushRejectedLogged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<p>hi</p>")
	svc := newService(t, Options{Root: dir, Push: map[string][]string{"/": {"/app.js"}}})

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).With("request_id", "r-1")
	ctx := logger.WithLogger(context.Background(), log)

	req := request("GET", "/")
	defer req.Op.End()
	hc := service.NewHookContext(ctx, nil, nil, rejectingPusher{})
	resp, err := svc.HandleRequest(ctx, req, hc)
	if err != nil {
		t.Fatalf("HandleRequest() error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, a rejected push must not change the response", resp.Status)
	}
	resp.Body.Discard()

	out := buf.String()
	if !strings.Contains(out, "asset not pushed") || !strings.Contains(out, "request_id=r-1") {
		t.Errorf("log output = %q", out)
	}
}

func TestRelativeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", ".", true},
		{"/a/b.txt", "a/b.txt", true},
		{"/a/../b", "b", true},
		{"/../x", "x", true},
		{"/a\x00b", "", false},
	}

	for _, tt := range tests {
		got, ok := relativeName(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("relativeName(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
