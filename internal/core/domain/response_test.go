package domain

import (
	"net/http"
	"testing"
	"time"
)

func TestComposeResponses(t *testing.T) {
	baseTiming := NewTiming()
	baseTiming.Add("a", time.Millisecond)
	base := &Response{
		Header: NewHeader("cache-control", "no-store", "vary", "accept"),
		Timing: baseTiming,
	}
	overTiming := NewTiming()
	overTiming.Add("b", time.Millisecond)
	over := &Response{
		Status: http.StatusTeapot,
		Header: NewHeader("vary", "accept-encoding", "content-type", "text/plain"),
		Body:   StringPayload("short and stout"),
		Timing: overTiming,
	}

	got := ComposeResponses(base, over)

	if got.Status != http.StatusTeapot {
		t.Errorf("Status = %d", got.Status)
	}
	if got.Header.Get("vary") != "accept, accept-encoding" {
		t.Errorf("vary = %q", got.Header.Get("vary"))
	}
	if got.Header.Get("cache-control") != "no-store" {
		t.Error("floor header should survive")
	}
	if got.Body != over.Body {
		t.Error("body should come from over")
	}
	if got.Timing.Len() != 2 || baseTiming.Len() != 1 {
		t.Errorf("timing merged into %d entries, base has %d", got.Timing.Len(), baseTiming.Len())
	}
	if base.Header.Get("vary") != "accept" {
		t.Error("base should be untouched")
	}
}

func TestComposeResponses_Nil(t *testing.T) {
	if got := ComposeResponses(nil, nil); got == nil || got.Header == nil {
		t.Error("composing nils should yield an empty response")
	}
	r := TextResponse(200, "x")
	if got := ComposeResponses(r, nil); got.Status != 200 || got == r {
		t.Error("composing with nil should copy base")
	}
}

func TestResponse_BodyAllowed(t *testing.T) {
	body := StringPayload("x")
	tests := []struct {
		name   string
		resp   *Response
		method string
		want   bool
	}{
		{"get with body", &Response{Status: 200, Body: body}, "GET", true},
		{"head", &Response{Status: 200, Body: body}, "HEAD", false},
		{"no body", &Response{Status: 200}, "GET", false},
		{"204", &Response{Status: 204, Body: body}, "GET", false},
		{"304", &Response{Status: 304, Body: body}, "GET", false},
		{"suppressed", &Response{Status: 200, Body: body, SuppressBody: true}, "GET", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.BodyAllowed(tt.method); got != tt.want {
				t.Errorf("BodyAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponse_ContentLength(t *testing.T) {
	if got := TextResponse(200, "hello").ContentLength(); got != 5 {
		t.Errorf("ContentLength() = %d, want 5", got)
	}
	r := TextResponse(200, "hello").WithHeader("Content-Length", "7")
	if got := r.ContentLength(); got != 7 {
		t.Errorf("ContentLength() = %d, want header value 7", got)
	}
	if got := (&Response{Status: 204}).ContentLength(); got != 0 {
		t.Errorf("ContentLength() = %d, want 0", got)
	}
}

func TestAbortedResponse(t *testing.T) {
	if !AbortedResponse().Aborted() {
		t.Error("sentinel should be aborted")
	}
	if (&Response{}).Aborted() || (*Response)(nil).Aborted() {
		t.Error("ordinary responses are not aborted")
	}
	if TextResponse(500, "x").Text() != "Internal Server Error" {
		t.Error("Text() should default to the standard status text")
	}
}

func TestResponse_StatusText(t *testing.T) {
	custom := &Response{Status: 418, StatusText: "Brewing"}
	if got := custom.Text(); got != "Brewing" {
		t.Errorf("Text() = %q, want the custom text", got)
	}
	merged := ComposeResponses(TextResponse(200, "ok"), custom)
	if merged.Status != 418 || merged.Text() != "Brewing" {
		t.Errorf("composed = %d %q", merged.Status, merged.Text())
	}
}
