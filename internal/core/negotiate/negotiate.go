// Package negotiate selects representations from Accept, Accept-Language
// and Accept-Encoding request headers.
//
// Every function returns the best entry of the available list, or "" when
// the header is absent or nothing is acceptable. Scores are q+1 for an
// exact match and q for a wildcard or partial match; ties keep the order of
// the available list. Malformed header entries are ignored and a q value
// that does not parse counts as 0.
package negotiate

import (
	"strconv"
	"strings"

	"github.com/munnerz/goautoneg"
	"golang.org/x/text/language"

	"github.com/yndnr/devserve-go/internal/core/domain"
)

// Match specificity. The most specific matching entry decides whether a
// representation is acceptable.
const (
	noMatch = iota - 1
	wildcardMatch
	partialMatch
	exactMatch
)

type acceptEntry struct {
	value string
	q     float64
}

// ContentType negotiates against the Accept header.
func ContentType(req *domain.Request, available []string) string {
	v, ok := headerValue(req, "accept")
	if !ok {
		return ""
	}
	return BestType(v, available)
}

// ContentLanguage negotiates against the Accept-Language header.
func ContentLanguage(req *domain.Request, available []string) string {
	v, ok := headerValue(req, "accept-language")
	if !ok {
		return ""
	}
	return BestLanguage(v, available)
}

// ContentEncoding negotiates against the Accept-Encoding header.
func ContentEncoding(req *domain.Request, available []string) string {
	v, ok := headerValue(req, "accept-encoding")
	if !ok {
		return ""
	}
	return BestEncoding(v, available)
}

// BestType selects a media type for an Accept header value.
func BestType(accept string, available []string) string {
	entries := mediaRanges(accept)
	return best(available, func(offer string) (float64, bool) {
		return score(entries, func(e acceptEntry) int { return matchType(e.value, offer) })
	})
}

// BestLanguage selects a language for an Accept-Language header value.
func BestLanguage(accept string, available []string) string {
	entries := parse(accept)
	return best(available, func(offer string) (float64, bool) {
		return score(entries, func(e acceptEntry) int { return matchLanguage(e.value, offer) })
	})
}

// BestEncoding selects a content coding for an Accept-Encoding header
// value. identity is acceptable unless explicitly excluded.
func BestEncoding(accept string, available []string) string {
	entries := parse(accept)
	return best(available, func(offer string) (float64, bool) {
		offer = strings.ToLower(strings.TrimSpace(offer))
		s, ok := score(entries, func(e acceptEntry) int {
			switch e.value {
			case offer:
				return exactMatch
			case "*":
				return wildcardMatch
			}
			return noMatch
		})
		if !ok && offer == "identity" && !excluded(entries, "identity") {
			return 0, true
		}
		return s, ok
	})
}

func headerValue(req *domain.Request, name string) (string, bool) {
	if req == nil || !req.Header.Has(name) {
		return "", false
	}
	return req.Header.Get(name), true
}

// best returns the first offer with the highest acceptable score.
func best(available []string, scoreOf func(string) (float64, bool)) string {
	result := ""
	bestScore := -1.0
	for _, offer := range available {
		s, ok := scoreOf(offer)
		if !ok {
			continue
		}
		if s > bestScore {
			bestScore = s
			result = offer
		}
	}
	return result
}

// score picks the most specific matching entry, the highest q winning
// among equally specific ones. q=0 means not acceptable.
func score(entries []acceptEntry, match func(acceptEntry) int) (float64, bool) {
	best := noMatch
	q := 0.0
	for _, e := range entries {
		m := match(e)
		if m == noMatch {
			continue
		}
		if m > best || (m == best && e.q > q) {
			best = m
			q = e.q
		}
	}
	if best == noMatch || q <= 0 {
		return 0, false
	}
	if best == exactMatch {
		return q + 1, true
	}
	return q, true
}

// excluded reports whether identity was refused by "identity;q=0", or by
// "*;q=0" without an explicit identity entry.
func excluded(entries []acceptEntry, coding string) bool {
	wildcardZero := false
	for _, e := range entries {
		switch e.value {
		case coding:
			return e.q <= 0
		case "*":
			wildcardZero = e.q <= 0
		}
	}
	return wildcardZero
}

func matchType(pattern, offer string) int {
	offer, _, _ = strings.Cut(offer, ";")
	oType, oSub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(offer)), "/")
	if !ok {
		return noMatch
	}
	pType, pSub, ok := strings.Cut(pattern, "/")
	if !ok {
		return noMatch
	}
	switch {
	case pType == "*" && pSub == "*":
		return wildcardMatch
	case pType != oType:
		return noMatch
	case pSub == "*":
		return partialMatch
	case pSub == oSub:
		return exactMatch
	}
	return noMatch
}

func matchLanguage(pattern, offer string) int {
	if pattern == "*" {
		return wildcardMatch
	}
	pTag, pErr := language.Parse(pattern)
	oTag, oErr := language.Parse(strings.TrimSpace(offer))
	if pErr != nil || oErr != nil {
		return matchLanguageText(pattern, strings.ToLower(strings.TrimSpace(offer)))
	}
	if pTag.String() == oTag.String() {
		return exactMatch
	}
	pBase, _ := pTag.Base()
	oBase, _ := oTag.Base()
	if pBase == oBase {
		return partialMatch
	}
	return noMatch
}

func matchLanguageText(pattern, offer string) int {
	if pattern == offer {
		return exactMatch
	}
	pPrimary, _, _ := strings.Cut(pattern, "-")
	oPrimary, _, _ := strings.Cut(offer, "-")
	if pPrimary == oPrimary {
		return partialMatch
	}
	return noMatch
}

// mediaRanges parses an Accept header value into lower-cased type/subtype
// entries.
func mediaRanges(header string) []acceptEntry {
	clauses := goautoneg.ParseAccept(header)
	entries := make([]acceptEntry, 0, len(clauses))
	for _, c := range clauses {
		if c.Type == "" || c.SubType == "" || c.Q < 0 || c.Q > 1 {
			continue
		}
		entries = append(entries, acceptEntry{
			value: strings.ToLower(c.Type) + "/" + strings.ToLower(c.SubType),
			q:     c.Q,
		})
	}
	return entries
}

// parse splits an Accept-Language or Accept-Encoding value into
// lower-cased entries. Unlike media ranges these carry no slash.
func parse(header string) []acceptEntry {
	var entries []acceptEntry
	for _, item := range strings.Split(header, ",") {
		parts := strings.Split(item, ";")
		value := strings.ToLower(strings.TrimSpace(parts[0]))
		if value == "" {
			continue
		}
		e := acceptEntry{value: value, q: 1}
		valid := true
		for _, p := range parts[1:] {
			k, v, _ := strings.Cut(p, "=")
			k = strings.ToLower(strings.TrimSpace(k))
			v = strings.Trim(strings.TrimSpace(v), `"`)
			if k != "q" {
				continue
			}
			q, err := strconv.ParseFloat(v, 64)
			if err != nil || q < 0 || q > 1 {
				valid = false
				break
			}
			e.q = q
		}
		if valid {
			entries = append(entries, e)
		}
	}
	return entries
}
