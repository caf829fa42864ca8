package service

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

// Kind names a hook.
type Kind string

// Hook kinds, in pipeline order.
const (
	KindServerListening       Kind = "serverListening"
	KindRedirectRequest       Kind = "redirectRequest"
	KindHandleRequest         Kind = "handleRequest"
	KindHandleError           Kind = "handleError"
	KindOnResponsePush        Kind = "onResponsePush"
	KindInjectResponseHeaders Kind = "injectResponseHeaders"
	KindResponseReady         Kind = "responseReady"
	KindRequestWaiting        Kind = "requestWaiting"
	KindServerStopped         Kind = "serverStopped"
)

// ListeningInfo is passed to serverListening hooks.
type ListeningInfo struct {
	Origin string
	Port   int
	HTTPS  bool
	HTTP2  bool
}

// StoppedInfo is passed to serverStopped hooks.
type StoppedInfo struct {
	Reason domain.StopReason
}

// PushTarget names a resource to push.
type PushTarget struct {
	Path   string
	Method string // defaults to GET
}

// Hook function types.
type (
	ServerListeningFunc       func(info ListeningInfo)
	RedirectRequestFunc       func(req *domain.Request, hc *HookContext) *domain.Redirection
	HandleRequestFunc         func(ctx context.Context, req *domain.Request, hc *HookContext) (*domain.Response, error)
	HandleErrorFunc           func(ctx context.Context, err error, req *domain.Request, hc *HookContext) (*domain.Response, error)
	OnResponsePushFunc        func(target PushTarget, pc *PushContext)
	InjectResponseHeadersFunc func(resp *domain.Response, hc *HookContext) domain.Header
	ResponseReadyFunc         func(resp *domain.Response, hc *HookContext)
	RequestWaitingFunc        func(req *domain.Request, elapsed time.Duration)
	ServerStoppedFunc         func(info StoppedInfo)
)

// Service bundles optional hooks under a name. Hooks must not modify the
// request they receive.
type Service struct {
	// Name identifies the service in logs and timings. Empty names are
	// replaced by "anonymous#<n>" at registration.
	Name string

	ServerListening       ServerListeningFunc
	RedirectRequest       RedirectRequestFunc
	HandleRequest         HandleRequestFunc
	HandleError           HandleErrorFunc
	OnResponsePush        OnResponsePushFunc
	InjectResponseHeaders InjectResponseHeadersFunc
	ResponseReady         ResponseReadyFunc
	RequestWaiting        RequestWaitingFunc
	ServerStopped         ServerStoppedFunc
}

// Provider is implemented by values able to describe themselves as a
// Service.
type Provider interface {
	Service() *Service
}

// Flatten turns arbitrarily nested service lists into a flat ordered list.
// Accepted entries are *Service, Service, Provider, []*Service, []Service and
// []any. Any other entry fails with ErrInvalidService. Returned services are
// copies; anonymous ones are named in order of appearance.
func Flatten(items ...any) ([]*Service, error) {
	var out []*Service
	anonymous := 0
	var walk func(path string, item any) error
	walk = func(path string, item any) error {
		switch v := item.(type) {
		case *Service:
			if v == nil {
				return domain.ErrInvalidService.WithDetails(path + ": nil service")
			}
			s := *v
			if s.Name == "" {
				anonymous++
				s.Name = fmt.Sprintf("anonymous#%d", anonymous)
			}
			out = append(out, &s)
		case Service:
			return walk(path, &v)
		case Provider:
			return walk(path, v.Service())
		case []*Service:
			for i, s := range v {
				if err := walk(fmt.Sprintf("%s[%d]", path, i), s); err != nil {
					return err
				}
			}
		case []Service:
			for i := range v {
				if err := walk(fmt.Sprintf("%s[%d]", path, i), &v[i]); err != nil {
					return err
				}
			}
		case []any:
			for i, s := range v {
				if err := walk(fmt.Sprintf("%s[%d]", path, i), s); err != nil {
					return err
				}
			}
		default:
			return domain.ErrInvalidService.WithDetails(fmt.Sprintf("%s: unsupported entry of type %T", path, item))
		}
		return nil
	}
	for i, item := range items {
		if err := walk(fmt.Sprintf("services[%d]", i), item); err != nil {
			return nil, err
		}
	}
	return out, nil
}
