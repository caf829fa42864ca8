package domain

import "strings"

// ComposeFunc merges the left and right values of one header.
type ComposeFunc func(left, right string) string

// Composer merges header mappings using per-name rules.
// Names without a rule take the right value.
type Composer struct {
	exact  map[string]ComposeFunc
	prefix map[string]ComposeFunc
}

// DefaultComposer holds the response header composition rules.
var DefaultComposer = NewComposer().
	WithRule("accept", JoinUnique).
	WithRule("accept-language", JoinUnique).
	WithRule("accept-encoding", JoinUnique).
	WithPrefixRule("access-control-allow-", JoinUnique).
	WithRule("server-timing", JoinUnique).
	WithRule("vary", JoinUnique)

// NewComposer returns a composer with no rules.
func NewComposer() *Composer {
	return &Composer{
		exact:  make(map[string]ComposeFunc),
		prefix: make(map[string]ComposeFunc),
	}
}

// WithRule returns a copy of c composing name with fn.
func (c *Composer) WithRule(name string, fn ComposeFunc) *Composer {
	out := c.clone()
	out.exact[strings.ToLower(name)] = fn
	return out
}

// WithPrefixRule returns a copy of c composing every name starting with
// prefix with fn.
func (c *Composer) WithPrefixRule(prefix string, fn ComposeFunc) *Composer {
	out := c.clone()
	out.prefix[strings.ToLower(prefix)] = fn
	return out
}

func (c *Composer) clone() *Composer {
	out := NewComposer()
	for k, v := range c.exact {
		out.exact[k] = v
	}
	for k, v := range c.prefix {
		out.prefix[k] = v
	}
	return out
}

func (c *Composer) rule(name string) ComposeFunc {
	if fn, ok := c.exact[name]; ok {
		return fn
	}
	for p, fn := range c.prefix {
		if strings.HasPrefix(name, p) {
			return fn
		}
	}
	return nil
}

// Compose merges right into a copy of left. Neither input is modified.
func (c *Composer) Compose(left, right Header) Header {
	out := left.Clone()
	for name, value := range right {
		name = strings.ToLower(name)
		prev, ok := out[name]
		if !ok {
			out[name] = value
			continue
		}
		if fn := c.rule(name); fn != nil {
			out[name] = fn(prev, value)
			continue
		}
		out[name] = value
	}
	return out
}

// ComposeHeaders merges headers with DefaultComposer.
func ComposeHeaders(left, right Header) Header {
	return DefaultComposer.Compose(left, right)
}

// JoinUnique joins two comma lists keeping the first occurrence of each
// element.
func JoinUnique(left, right string) string {
	seen := make(map[string]struct{})
	var parts []string
	for _, list := range []string{left, right} {
		for _, item := range strings.Split(list, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			parts = append(parts, item)
		}
	}
	return strings.Join(parts, ", ")
}
