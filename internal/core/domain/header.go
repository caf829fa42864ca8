package domain

import (
	"net/http"
	"sort"
	"strings"
)

// Header is a header mapping with lower-case names.
//
// Multiple values of one name are joined with ", ". set-cookie values are
// joined with "\n" since cookies cannot be comma-joined.
type Header map[string]string

// NewHeader builds a Header from name/value pairs.
func NewHeader(pairs ...string) Header {
	h := make(Header, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// HeaderFromHTTP converts a net/http header.
func HeaderFromHTTP(src http.Header) Header {
	h := make(Header, len(src))
	for name, values := range src {
		key := strings.ToLower(name)
		if key == "set-cookie" {
			h[key] = strings.Join(values, "\n")
			continue
		}
		h[key] = strings.Join(values, ", ")
	}
	return h
}

// Get returns the value of name, case-insensitively.
func (h Header) Get(name string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(name)]
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Set stores value under the lower-cased name.
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Del removes name.
func (h Header) Del(name string) {
	delete(h, strings.ToLower(name))
}

// Clone returns a copy of h. Cloning nil returns an empty Header.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Without returns a copy of h without the given names.
func (h Header) Without(names ...string) Header {
	out := h.Clone()
	for _, name := range names {
		out.Del(name)
	}
	return out
}

// Names returns the header names sorted.
func (h Header) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WriteTo copies h into dst, splitting set-cookie values.
func (h Header) WriteTo(dst http.Header) {
	for name, value := range h {
		if name == "set-cookie" {
			for _, cookie := range strings.Split(value, "\n") {
				dst.Add(name, cookie)
			}
			continue
		}
		dst.Set(name, value)
	}
}
