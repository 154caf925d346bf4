package symbolmap

import "strings"

// Mapper normalizes broker-flavored symbol names ("EURUSD.pro", "m.GBPUSD")
// to the plain names the receiving side trades. Overrides win over rules.
type Mapper struct {
	prefixes  []string
	suffixes  []string
	overrides map[string]string
}

func New(prefixes, suffixes []string, overrides map[string]string) *Mapper {
	norm := make(map[string]string, len(overrides))
	for k, v := range overrides {
		norm[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return &Mapper{
		prefixes:  prefixes,
		suffixes:  suffixes,
		overrides: norm,
	}
}

// Map returns the normalized symbol. Unknown names pass through with only
// the prefix/suffix rules and uppercasing applied.
func (m *Mapper) Map(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if mapped, ok := m.overrides[upper]; ok {
		return mapped
	}
	out := upper
	for _, p := range m.prefixes {
		if up := strings.ToUpper(p); strings.HasPrefix(out, up) {
			out = strings.TrimPrefix(out, up)
			break
		}
	}
	for _, s := range m.suffixes {
		if us := strings.ToUpper(s); strings.HasSuffix(out, us) {
			out = strings.TrimSuffix(out, us)
			break
		}
	}
	return out
}
