package providers

import "strings"

// ProviderRef names an annotation provider and, optionally, which key to use:
// "groq:batch" reads ANNOTATE_GROQ_KEY_BATCH before GROQ_API_KEY.
type ProviderRef struct {
	Raw      string `json:"raw"`
	Name     string `json:"name"`
	KeyAlias string `json:"key_alias,omitempty"`
}

func (r ProviderRef) String() string {
	if r.KeyAlias == "" {
		return r.Name
	}
	return r.Name + ":" + r.KeyAlias
}

// ParseProviderRef reads one "name[:alias]" entry. Names are case-insensitive.
func ParseProviderRef(s string) (ProviderRef, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProviderRef{}, false
	}
	name, alias, _ := strings.Cut(s, ":")
	ref := ProviderRef{
		Raw:      s,
		Name:     strings.ToLower(strings.TrimSpace(name)),
		KeyAlias: strings.TrimSpace(alias),
	}
	return ref, ref.Name != ""
}

// ParseProviderList splits a preference list on "|" or ",". Repeated entries
// are kept once; an empty list means the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]ProviderRef, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		ref, ok := ParseProviderRef(p)
		if !ok {
			continue
		}
		if _, dup := seen[ref.String()]; dup {
			continue
		}
		seen[ref.String()] = struct{}{}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
