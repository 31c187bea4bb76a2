/*
Package features derives a compact semantic fingerprint from request text.

The classifier is a closed set of domain tags plus keyword tables; every
function here is pure, so the same text always produces the same fingerprint.
*/
package features

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"
)

// fuzzyMinLength is the shortest token (and role) eligible for typo-tolerant matching.
const fuzzyMinLength = 8

// Fingerprint is the semantic summary of one request.
type Fingerprint struct {
	Domain         DomainTag      `json:"domain"`
	Complexity     ComplexityTier `json:"complexity"`
	ActorRoles     []string       `json:"actorRoles"`
	ActionKeywords []string       `json:"actionKeywords"`
}

// Analyze fingerprints text. It never fails: empty or unrecognised text
// yields Generic / Low with no roles or keywords.
func Analyze(text string) Fingerprint {
	normalized := normalize(text)
	tokens := tokenPattern.FindAllString(normalized, -1)
	if len(tokens) == 0 {
		return Fingerprint{Domain: Generic, Complexity: Low}
	}

	stems := make([]string, len(tokens))
	for i, tok := range tokens {
		stems[i] = porter2.Stem(tok)
	}

	actors := extractActors(normalized, tokens, stems)
	actions := extractActions(stems)

	return Fingerprint{
		Domain:         classifyDomain(stems),
		Complexity:     classifyComplexity(normalized, tokens, stems, len(actors), len(actions)),
		ActorRoles:     actors,
		ActionKeywords: actions,
	}
}

// Terms returns the keyword-overlap vocabulary of a fingerprint.
func (f Fingerprint) Terms() map[string]struct{} {
	terms := make(map[string]struct{}, len(f.ActorRoles)+len(f.ActionKeywords))
	for _, r := range f.ActorRoles {
		terms["actor:"+r] = struct{}{}
	}
	for _, a := range f.ActionKeywords {
		terms["action:"+a] = struct{}{}
	}
	return terms
}

// Jaccard computes |A∩B| / |A∪B| over the roles and keywords of two fingerprints.
// Two empty fingerprints share nothing and score 0.
func Jaccard(a, b Fingerprint) float64 {
	ta, tb := a.Terms(), b.Terms()
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func normalize(text string) string {
	lower := strings.ToLower(text)
	for _, rw := range phraseRewrites {
		lower = rw.pattern.ReplaceAllString(lower, rw.repl)
	}
	return lower
}

// classifyDomain picks the tag with the most keyword hits. Equal counts go to
// the tag declared first; no hits at all means Generic.
func classifyDomain(stems []string) DomainTag {
	best, bestCount := Generic, 0
	for _, tag := range taggedDomains {
		count := 0
		set := domainStems[tag]
		for _, s := range stems {
			if set[s] {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = tag, count
		}
	}
	return best
}

func extractActors(normalized string, tokens, stems []string) []string {
	found := make(map[string]bool)

	for i, s := range stems {
		if stopwords[tokens[i]] {
			continue
		}
		if role, ok := actorStems[s]; ok {
			found[role] = true
			continue
		}
		if role, ok := fuzzyActor(tokens[i]); ok {
			found[role] = true
		}
	}

	// "As a <role>, I want ..." names the actor even outside the vocabulary.
	for _, m := range asARolePattern.FindAllStringSubmatch(normalized, -1) {
		words := strings.Fields(m[1])
		last := words[len(words)-1]
		if stopwords[last] {
			continue
		}
		if role, ok := actorStems[porter2.Stem(last)]; ok {
			found[role] = true
			continue
		}
		found[strings.TrimSuffix(last, "s")] = true
	}

	return sortedKeys(found)
}

// fuzzyActor tolerates a single-character typo on longer role names.
func fuzzyActor(token string) (string, bool) {
	if len(token) < fuzzyMinLength || strings.HasSuffix(token, "ed") || strings.HasSuffix(token, "ing") {
		return "", false
	}
	for _, role := range longActors {
		if edlib.LevenshteinDistance(token, role) <= 1 {
			return role, true
		}
	}
	return "", false
}

func extractActions(stems []string) []string {
	found := make(map[string]bool)
	for _, s := range stems {
		if action, ok := actionStems[s]; ok {
			found[action] = true
		}
	}
	return sortedKeys(found)
}

// classifyComplexity awards a point per size or breadth indicator and buckets the total.
func classifyComplexity(normalized string, tokens, stems []string, actors, actions int) ComplexityTier {
	points := 0

	words := len(tokens)
	if words > 40 {
		points++
	}
	if words > 100 {
		points++
	}

	sentences := 0
	for _, part := range sentenceSplit.Split(normalized, -1) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}
	if sentences >= 3 {
		points++
	}

	if actors >= 2 {
		points++
	}
	if actions >= 3 {
		points++
	}
	if actions >= 6 {
		points++
	}

	for _, s := range stems {
		if indicatorSet[s] {
			points++
			break
		}
	}

	switch {
	case points <= 1:
		return Low
	case points <= 3:
		return Medium
	default:
		return High
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
