package directory

import (
	"fmt"
	"strings"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// MatchSignals are the raw identifiers pulled from a document or message.
type MatchSignals struct {
	GlobalID string
	Phone    string
	Email    string
	Name     string
}

// Matcher resolves signals to a supplier code through an ordered cascade.
// Each tier must name exactly one supplier to win; an ambiguous tier is
// skipped rather than guessed at.
type Matcher struct {
	cache           *Cache
	excludedDomains map[string]struct{}
	fuzzyThreshold  float64
}

func NewMatcher(cache *Cache, excludedDomains []string, fuzzyThreshold float64) *Matcher {
	excluded := make(map[string]struct{}, len(excludedDomains))
	for _, d := range excludedDomains {
		excluded[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Matcher{cache: cache, excludedDomains: excluded, fuzzyThreshold: fuzzyThreshold}
}

// Match runs the cascade: global id, phone, exact email, email domain,
// exact name, fuzzy name. Returns UNKNOWN when nothing wins.
func (m *Matcher) Match(signals MatchSignals) (internal.DetectionResult, error) {
	idx, err := m.cache.Snapshot()
	if err != nil {
		return internal.DetectionResult{}, err
	}

	if code, ok := uniqueHit(idx.ByGlobalID, util.NormalizeDigits(signals.GlobalID)); ok {
		return matched(code, "global_id"), nil
	}

	if phone := util.NormalizeDigits(signals.Phone); len(phone) >= 7 {
		if code, ok := uniqueHit(idx.ByPhone, phone); ok {
			return matched(code, "phone"), nil
		}
	}

	email := util.NormalizeEmail(signals.Email)
	if code, ok := uniqueHit(idx.ByEmail, email); ok {
		return matched(code, "email"), nil
	}

	if domain := util.EmailDomain(email); domain != "" {
		if _, excluded := m.excludedDomains[domain]; !excluded {
			if code, ok := uniqueHit(idx.ByDomain, domain); ok {
				return matched(code, "email_domain"), nil
			}
		}
	}

	name := util.NormalizeName(signals.Name)
	if code, ok := uniqueHit(idx.ByName, name); ok {
		return matched(code, "name"), nil
	}

	if code, ok := m.fuzzyName(idx, name); ok {
		return matched(code, "fuzzy_name"), nil
	}

	return internal.DetectionResult{
		SupplierCode: internal.UnknownSupplier,
		Confidence:   0,
		Method:       internal.DetectNone,
		Reasoning:    "no directory entry matched",
	}, nil
}

// fuzzyName accepts only when exactly one supplier clears the threshold.
func (m *Matcher) fuzzyName(idx *Index, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	var winner string
	hits := 0
	for _, s := range idx.Suppliers {
		score := util.SimilarityRatio(name, util.NormalizeName(s.Name))
		if score >= m.fuzzyThreshold {
			hits++
			winner = s.Code
		}
	}
	if hits == 1 {
		return winner, true
	}
	return "", false
}

func uniqueHit(m map[string][]string, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	codes := m[key]
	if len(codes) == 1 {
		return codes[0], true
	}
	return "", false
}

func matched(code, via string) internal.DetectionResult {
	return internal.DetectionResult{
		SupplierCode: code,
		Confidence:   1.0,
		Method:       internal.DetectFallback,
		Reasoning:    fmt.Sprintf("directory match via %s", via),
	}
}
