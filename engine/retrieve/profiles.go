// Package retrieve answers queries by blending hits from the per-view
// vector collections according to a retrieval profile chosen for the
// question type.
package retrieve

import (
	"sort"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
)

// canonicalProfiles are the built-in defaults, one per canonical question
// type. A configured profile of the same name replaces the built-in; other
// configured profiles are added alongside.
var canonicalProfiles = []domain.RetrievalProfile{
	{Name: "factual", Collections: []string{domain.ViewPrimary, domain.ViewSummary}},
	{Name: "analytical", Collections: []string{domain.ViewPrimary, domain.ViewSummary, domain.ViewIntents}},
	{Name: "exploratory", Collections: []string{domain.ViewSummary, domain.ViewIntents, domain.ViewDocsum}},
}

// fallbackProfile maps the remaining question types onto a canonical
// profile when no profile carries their name directly.
var fallbackProfile = map[string]string{
	"comparative": "analytical",
	"meta":        "exploratory",
	"creative":    "exploratory",
}

// profileSet holds resolved profiles in a fixed, documented iteration
// order: canonical profiles first, then extra configured profiles sorted by
// name. Dedup tie-breaks depend on collection order within a profile, so
// the order is resolved once and never recomputed per query.
type profileSet struct {
	byName map[string]domain.RetrievalProfile
	order  []string
}

// resolveProfiles merges configured profiles over the built-in defaults.
func resolveProfiles(configured map[string]domain.RetrievalProfile) profileSet {
	set := profileSet{byName: make(map[string]domain.RetrievalProfile, len(canonicalProfiles)+len(configured))}

	for _, p := range canonicalProfiles {
		if override, ok := configured[p.Name]; ok {
			override.Name = p.Name
			set.byName[p.Name] = override
		} else {
			set.byName[p.Name] = p
		}
		set.order = append(set.order, p.Name)
	}

	var extras []string
	for name, p := range configured {
		if _, canonical := set.byName[name]; canonical {
			continue
		}
		p.Name = name
		set.byName[name] = p
		extras = append(extras, name)
	}
	sort.Strings(extras)
	set.order = append(set.order, extras...)
	return set
}

// selectProfile picks the profile for a question type: exact name match,
// then the fixed fallback mapping, then the first profile in iteration
// order.
func (s profileSet) selectProfile(questionType string) domain.RetrievalProfile {
	key := strings.ToLower(strings.TrimSpace(questionType))
	if p, ok := s.byName[key]; ok {
		return p
	}
	if canonical, ok := fallbackProfile[key]; ok {
		if p, ok := s.byName[canonical]; ok {
			return p
		}
	}
	return s.byName[s.order[0]]
}
