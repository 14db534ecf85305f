package model

import (
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// PatternKind identifies the local-part convention that generated a candidate address.
type PatternKind string

const (
	// PatternFirstDotLast is "brett.anderson".
	PatternFirstDotLast PatternKind = "first.last"
	// PatternFirstUnderLast is "brett_anderson".
	PatternFirstUnderLast PatternKind = "first_last"
	// PatternFLast is "banderson".
	PatternFLast PatternKind = "flast"
	// PatternFDotLast is "b.anderson".
	PatternFDotLast PatternKind = "f.last"
	// PatternFirstL is "bretta".
	PatternFirstL PatternKind = "firstl"
	// PatternFirstLast is "brettanderson".
	PatternFirstLast PatternKind = "firstlast"
	// PatternFirst is "brett".
	PatternFirst PatternKind = "first"
	// PatternLast is "anderson".
	PatternLast PatternKind = "last"
)

// patternPriority is the fixed global escalation order, most common convention first.
var patternPriority = []PatternKind{
	PatternFirstDotLast,
	PatternFLast,
	PatternFirstUnderLast,
	PatternFirstLast,
	PatternFDotLast,
	PatternFirstL,
	PatternFirst,
	PatternLast,
}

// Priority returns the escalation rank of the pattern; lower ranks are tried first.
// Unknown patterns sort last.
func (p PatternKind) Priority() int {
	for i, kind := range patternPriority {
		if kind == p {
			return i
		}
	}
	return len(patternPriority)
}

// Person identifies one extracted person at a company domain.
type Person struct {
	ID        int64  `json:"id"         db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name"  db:"last_name"`
	Domain    string `json:"domain"     db:"domain"`
}

// NormalizeNamePart lowercases a name component and strips everything that
// cannot appear in a mailbox local-part.
func NormalizeNamePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDomain lowercases a domain and converts internationalized names to
// their ASCII (punycode) form. Invalid input is returned lowercased as-is.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(domain, ".")))
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		return ascii
	}
	return domain
}

// Apply renders the local-part this pattern produces for the given person.
// Empty string means the pattern is not applicable (missing name component).
func (p PatternKind) Apply(first, last string) string {
	first = NormalizeNamePart(first)
	last = NormalizeNamePart(last)

	switch p {
	case PatternFirstDotLast:
		if first == "" || last == "" {
			return ""
		}
		return first + "." + last
	case PatternFirstUnderLast:
		if first == "" || last == "" {
			return ""
		}
		return first + "_" + last
	case PatternFLast:
		if first == "" || last == "" {
			return ""
		}
		return first[:1] + last
	case PatternFDotLast:
		if first == "" || last == "" {
			return ""
		}
		return first[:1] + "." + last
	case PatternFirstL:
		if first == "" || last == "" {
			return ""
		}
		return first + last[:1]
	case PatternFirstLast:
		if first == "" || last == "" {
			return ""
		}
		return first + last
	case PatternFirst:
		return first
	case PatternLast:
		return last
	}
	return ""
}

// InferPattern replays every pattern against the person's name and returns the
// pattern whose output matches the local-part. The second return is false when
// no pattern reproduces it (e.g. a crawled alias).
func InferPattern(localPart, first, last string) (PatternKind, bool) {
	localPart = strings.ToLower(strings.TrimSpace(localPart))
	for _, kind := range patternPriority {
		if out := kind.Apply(first, last); out != "" && out == localPart {
			return kind, true
		}
	}
	return "", false
}

// EmailCandidate pairs a candidate address with the pattern that produced it.
type EmailCandidate struct {
	EmailID   int64
	Email     string
	LocalPart string
	Pattern   PatternKind
}

// RankCandidates orders candidates by the fixed global pattern priority,
// breaking ties alphabetically by local-part. Candidates whose pattern could
// not be inferred sort after all recognized patterns.
func RankCandidates(candidates []EmailCandidate) []EmailCandidate {
	ranked := make([]EmailCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].Pattern.Priority(), ranked[j].Pattern.Priority()
		if pi != pj {
			return pi < pj
		}
		return ranked[i].LocalPart < ranked[j].LocalPart
	})
	return ranked
}
