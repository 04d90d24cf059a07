package config

import (
	"fmt"
	"sort"
	"strings"

	"prefsync/internal/prefs"
)

// Setting is one desired (domain, key, value) assignment with the effective
// store domain and key already resolved.
type Setting struct {
	Domain string
	Key    string
	Value  prefs.Value
}

// TargetState is the flattened, deterministic list of desired assignments,
// ordered by (domain, key).
type TargetState []Setting

// Effective maps a document domain to the real store domain and key.
//
//	dock                      -> com.apple.dock
//	com.googlecode.iterm2     -> com.googlecode.iterm2 (already qualified)
//	NSGlobalDomain            -> NSGlobalDomain
//	NSGlobalDomain.sub + key  -> NSGlobalDomain, sub.key
func Effective(domain, key string) (string, string) {
	if domain == prefs.GlobalDomain {
		return domain, key
	}
	if rest, ok := strings.CutPrefix(domain, prefs.GlobalDomain+"."); ok {
		return prefs.GlobalDomain, rest + "." + key
	}
	if strings.Contains(domain, ".") {
		return domain, key
	}
	return "com.apple." + domain, key
}

// Target flattens the set section into a TargetState. Mapping values below
// the key level become dictionary values; sub-domains are spelled with dotted
// domain names. Flattening collisions on the effective (domain, key) pair are
// rejected.
func (d *Document) Target() (TargetState, error) {
	seen := make(map[string]struct{})
	var out TargetState

	domains := make([]string, 0, len(d.Set))
	for dom := range d.Set {
		domains = append(domains, dom)
	}
	sort.Strings(domains)

	for _, dom := range domains {
		keys := make([]string, 0, len(d.Set[dom]))
		for k := range d.Set[dom] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v, err := prefs.FromAny(d.Set[dom][k])
			if err != nil {
				return nil, fmt.Errorf("set.%s.%s: %w", dom, k, err)
			}
			effDom, effKey := Effective(dom, k)
			id := effDom + "\x00" + effKey
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("set.%s.%s: duplicate assignment for %s %s", dom, k, effDom, effKey)
			}
			seen[id] = struct{}{}
			out = append(out, Setting{Domain: effDom, Key: effKey, Value: v})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}
