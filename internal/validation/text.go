package validation

import "strings"

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "for": {},
	"if": {}, "in": {}, "on": {}, "with": {}, "as": {}, "at": {}, "by": {}, "from": {},
	"is": {}, "are": {}, "be": {}, "was": {}, "were": {}, "it": {}, "its": {}, "into": {},
	"any": {}, "all": {}, "per": {}, "then": {}, "than": {}, "needed": {}, "necessary": {},
	"required": {}, "applicable": {}, "when": {}, "after": {}, "before": {},
}

// tokens splits text into a set of stemmed content words.
func tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[stem(w)] = struct{}{}
	}
	return out
}

// stem strips one inflection and a trailing "e" so that "replace", "replaced" and "replacing"
// collapse to the same token.
func stem(w string) string {
	for _, suf := range []string{"ing", "ed", "es", "s"} {
		minLen := 4
		if suf == "s" {
			minLen = 3
		}
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= minLen {
			w = w[:len(w)-len(suf)]
			break
		}
	}
	if len(w) > 3 && strings.HasSuffix(w, "e") {
		w = w[:len(w)-1]
	}
	return w
}

// similarity is the overlap coefficient |a∩b| / min(|a|,|b|).
func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for t := range s {
			out[t] = struct{}{}
		}
	}
	return out
}
