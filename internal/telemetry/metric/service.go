package metric

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/common/expfmt"

	"github.com/yndnr/devserve-go/internal/core/domain"
	"github.com/yndnr/devserve-go/internal/core/service"
	"github.com/yndnr/devserve-go/internal/telemetry/logger"
)

// DefaultPath is where Service exposes metrics when no path is given.
const DefaultPath = "/metrics"

// Service returns a service answering GET and HEAD requests on path with
// the content of r, in the exposition format the client accepts.
func Service(r *Registry, path string) *service.Service {
	if path == "" {
		path = DefaultPath
	}
	return &service.Service{
		Name: "metrics",
		HandleRequest: func(ctx context.Context, req *domain.Request, _ *service.HookContext) (*domain.Response, error) {
			if req.Path != path {
				return nil, nil
			}
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return domain.TextResponse(http.StatusMethodNotAllowed, "method not allowed").
					WithHeader("allow", "GET, HEAD"), nil
			}
			resp, err := expose(r, req)
			if err != nil {
				logger.L(ctx).Error("metrics exposition failed", "path", path, "error", err)
			}
			return resp, err
		},
	}
}

func expose(r *Registry, req *domain.Request) (*domain.Response, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("metric: gather: %w", err)
	}

	accept := http.Header{}
	if v := req.Header.Get("accept"); v != "" {
		accept.Set("Accept", v)
	}
	format := expfmt.Negotiate(accept)

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("metric: encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return nil, fmt.Errorf("metric: close encoder: %w", err)
		}
	}

	return &domain.Response{
		Status: http.StatusOK,
		Header: domain.NewHeader(
			"content-type", string(format),
			"cache-control", "no-store",
		),
		Body: domain.BufferPayload(buf.Bytes()),
	}, nil
}
