// Package fileservice serves a directory tree as a request handling
// service.
//
// GET and HEAD requests are mapped below the root; directories answer
// with their index file. A precompressed sibling (".br", ".gz") is served
// when the client accepts its coding. HTML documents may declare assets
// to push over HTTP/2.
package fileservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/negotiate"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
)

// DefaultIndex is the file served for directory requests.
const DefaultIndex = "index.html"

// encodings lists precompressed variants by preference. identity is the
// file itself.
var encodings = []struct {
	coding string
	suffix string
}{
	{"br", ".br"},
	{"gzip", ".gz"},
	{"identity", ""},
}

// Options configures a file service.
type Options struct {
	// Root is the served directory. Required.
	Root string
	// Index is the file served for directories (default: index.html).
	Index string
	// Push maps a request path to assets pushed alongside its response.
	Push map[string][]string
	// CacheControl is set on every file response (default: no-cache).
	CacheControl string
}

// FileService serves files below a root directory.
type FileService struct {
	root      *os.Root
	opts      Options
	closeOnce sync.Once
	closeErr  error
}

// New opens opts.Root. Close releases it.
func New(opts Options) (*FileService, error) {
	if opts.Root == "" {
		return nil, domain.ErrInvalidOption.WithDetails("file service root is empty")
	}
	if opts.Index == "" {
		opts.Index = DefaultIndex
	}
	if opts.CacheControl == "" {
		opts.CacheControl = "no-cache"
	}
	root, err := os.OpenRoot(opts.Root)
	if err != nil {
		return nil, domain.ErrInvalidOption.WithDetails("file service root").WithCause(err)
	}
	return &FileService{root: root, opts: opts}, nil
}

// Close releases the root directory. Later calls return the first result.
func (f *FileService) Close() error {
	f.closeOnce.Do(func() { f.closeErr = f.root.Close() })
	return f.closeErr
}

// Service implements service.Provider.
func (f *FileService) Service() *service.Service {
	return &service.Service{
		Name:          "files",
		HandleRequest: f.handle,
		ServerStopped: func(service.StoppedInfo) { _ = f.Close() },
	}
}

func (f *FileService) handle(ctx context.Context, req *domain.Request, hc *service.HookContext) (*domain.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return domain.TextResponse(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)).
			WithHeader("allow", "GET, HEAD"), nil
	}

	name, ok := relativeName(req.Path)
	if !ok {
		return domain.TextResponse(http.StatusBadRequest, "invalid path"), nil
	}

	info, err := f.root.Stat(name)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(req.Path, "/") {
			return redirectToDir(req), nil
		}
		name = path.Join(name, f.opts.Index)
		info, err = f.root.Stat(name)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && info.IsDir():
		return domain.TextResponse(http.StatusNotFound, http.StatusText(http.StatusNotFound)), nil
	case errors.Is(err, fs.ErrPermission):
		return domain.TextResponse(http.StatusForbidden, http.StatusText(http.StatusForbidden)), nil
	case err != nil:
		return nil, fmt.Errorf("fileservice: stat %s: %w", name, err)
	}

	resp, err := f.open(req, name)
	if err != nil {
		return nil, err
	}
	if req.Method == http.MethodGet {
		f.push(ctx, req, hc)
	}
	return resp, nil
}

// open returns the response for file name, choosing a precompressed
// variant when the client accepts one.
func (f *FileService) open(req *domain.Request, name string) (*domain.Response, error) {
	available := make([]string, 0, len(encodings))
	for _, e := range encodings {
		if e.suffix == "" {
			available = append(available, e.coding)
			continue
		}
		if info, err := f.root.Stat(name + e.suffix); err == nil && info.Mode().IsRegular() {
			available = append(available, e.coding)
		}
	}

	coding := "identity"
	if len(available) > 1 {
		if c := negotiate.ContentEncoding(req, available); c != "" {
			coding = c
		}
	}
	suffix := ""
	for _, e := range encodings {
		if e.coding == coding {
			suffix = e.suffix
		}
	}

	file, err := f.root.Open(name + suffix)
	if err != nil {
		return nil, fmt.Errorf("fileservice: open %s: %w", name+suffix, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("fileservice: stat %s: %w", name+suffix, err)
	}

	header := domain.NewHeader(
		"content-type", contentType(name),
		"content-length", strconv.FormatInt(info.Size(), 10),
		"cache-control", f.opts.CacheControl,
		"last-modified", info.ModTime().UTC().Format(http.TimeFormat),
	)
	if len(available) > 1 {
		header.Set("vary", "accept-encoding")
	}
	if suffix != "" {
		header.Set("content-encoding", coding)
	}

	// HEAD responses discard the body, which closes the file.
	return &domain.Response{
		Status: http.StatusOK,
		Header: header,
		Body:   domain.StreamPayload(file, info.Size()),
	}, nil
}

func (f *FileService) push(ctx context.Context, req *domain.Request, hc *service.HookContext) {
	log := logger.L(ctx)
	for _, asset := range f.opts.Push[req.Path] {
		if err := hc.PushResponse(service.PushTarget{Path: asset}); err != nil {
			log.Debug("asset not pushed", "path", asset, "error", err)
		}
	}
}

// relativeName maps a request path to a slash-separated name below the
// root. Paths escaping the root are rejected.
func relativeName(p string) (string, bool) {
	if strings.Contains(p, "\x00") {
		return "", false
	}
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		return ".", true
	}
	return name, fs.ValidPath(name)
}

func redirectToDir(req *domain.Request) *domain.Response {
	target := req.Path + "/"
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}
	return domain.TextResponse(http.StatusMovedPermanently, http.StatusText(http.StatusMovedPermanently)).
		WithHeader("location", target)
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
