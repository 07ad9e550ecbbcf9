package assignment

import "strings"

// General is the catch-all specialization used when nobody at a center is a specialist.
const General = "general"

type specializationRule struct {
	keywords []string
	name     string
	aliases  []string
}

// Checked in order; the first rule with a keyword contained in the repair type wins.
var specializationRules = []specializationRule{
	{keywords: []string{"brake"}, name: "brakes"},
	{keywords: []string{"transmission", "clutch", "gearbox"}, name: "transmission"},
	{keywords: []string{"engine", "oil"}, name: "engine", aliases: []string{"oil change"}},
	{keywords: []string{"electrical", "battery", "starter", "alternator"}, name: "electrical"},
	{keywords: []string{"hvac", "ac", "air_conditioning", "heating"}, name: "hvac", aliases: []string{"ac", "heating"}},
	{keywords: []string{"suspension", "steering", "alignment"}, name: "suspension", aliases: []string{"alignment"}},
	{keywords: []string{"diagnostic"}, name: "diagnostics"},
	{keywords: []string{"tire", "tyre", "wheel"}, name: "tires"},
	{keywords: []string{"exhaust", "emission"}, name: "exhaust", aliases: []string{"emissions"}},
	{keywords: []string{"general", "inspection", "maintenance"}, name: General, aliases: []string{"general maintenance"}},
}

// Specialization is the skill a job needs, with the other spellings technicians list it under.
type Specialization struct {
	Name    string
	Aliases []string
}

// Accepts reports whether a technician specialization label satisfies s.
func (s Specialization) Accepts(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == s.Name {
		return true
	}
	for _, a := range s.Aliases {
		if label == a {
			return true
		}
	}
	return false
}

// RequiredSpecialization derives the specialization from a predicted repair type such as
// "brake_service" or "Battery Replacement". Unknown types map to their normalized form.
func RequiredSpecialization(repairType string) Specialization {
	normalized := strings.ToLower(strings.TrimSpace(repairType))
	if normalized == "" {
		return Specialization{Name: General}
	}
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '/'
	})
	for _, rule := range specializationRules {
		for _, kw := range rule.keywords {
			if matchesKeyword(normalized, tokens, kw) {
				return Specialization{Name: rule.name, Aliases: rule.aliases}
			}
		}
	}
	return Specialization{Name: strings.Join(tokens, " ")}
}

// Short keywords ("ac") must match a whole token so "replace" does not read as hvac.
func matchesKeyword(normalized string, tokens []string, kw string) bool {
	if len(kw) <= 3 {
		for _, t := range tokens {
			if t == kw {
				return true
			}
		}
		return false
	}
	return strings.Contains(normalized, kw)
}
