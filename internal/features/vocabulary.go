package features

import (
	"regexp"

	"github.com/surgebase/porter2"
)

// domainKeywords lists the trigger words for every tag except Generic.
var domainKeywords = map[DomainTag][]string{
	Commerce: {
		"cart", "product", "checkout", "order", "purchase", "shop", "shopping",
		"inventory", "catalog", "wishlist", "store", "discount", "coupon",
		"shipping", "delivery", "stock",
	},
	Identity: {
		"login", "logout", "signin", "signup", "password", "account", "register",
		"registration", "auth", "authenticate", "authentication", "credential",
		"session", "otp", "mfa", "2fa", "permission", "username",
	},
	Payments: {
		"payment", "pay", "transaction", "billing", "invoice", "money", "credit",
		"card", "refund", "wallet", "subscription", "charge", "bank", "transfer",
	},
	Social: {
		"post", "comment", "like", "share", "follow", "follower", "message",
		"friend", "feed", "chat", "profile", "react",
	},
	Search: {
		"search", "filter", "sort", "query", "result", "keyword", "find",
		"lookup", "autocomplete", "suggestion",
	},
	Mobile: {
		"mobile", "app", "swipe", "touch", "notification", "push", "tablet",
		"android", "ios", "offline", "gesture", "device", "biometric",
	},
}

var actorVocabulary = []string{
	"user", "customer", "admin", "administrator", "guest", "buyer", "seller",
	"vendor", "merchant", "shopper", "manager", "visitor", "member", "owner",
	"developer", "operator", "moderator", "editor", "viewer", "reviewer",
	"author", "employee", "student", "teacher", "patient", "doctor", "driver",
	"rider", "subscriber", "tester", "agent",
}

var actionVocabulary = []string{
	"add", "remove", "delete", "create", "update", "edit", "view", "search",
	"filter", "sort", "login", "logout", "register", "pay", "checkout",
	"purchase", "buy", "upload", "download", "share", "comment", "like",
	"follow", "message", "send", "receive", "reset", "verify", "approve",
	"reject", "book", "cancel", "subscribe", "unsubscribe", "export", "import",
	"notify", "save", "submit", "browse", "track", "refund", "transfer",
	"invite", "assign", "schedule", "review", "rate", "print", "sync",
}

// complexityIndicators push a request toward a higher tier on their own.
var complexityIndicators = []string{"integrate", "multiple", "complex", "advanced", "system", "workflow"}

// phraseRewrites fold multi-word verbs into the single tokens the vocabularies use.
var phraseRewrites = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`\blog\s*-?\s*in\b`), "login"},
	{regexp.MustCompile(`\blog\s*-?\s*out\b`), "logout"},
	{regexp.MustCompile(`\bsign\s*-?\s*in\b`), "signin"},
	{regexp.MustCompile(`\bsign\s*-?\s*up\b`), "signup"},
	{regexp.MustCompile(`\bcheck\s*-?\s*out\b`), "checkout"},
	{regexp.MustCompile(`\be\s*-\s*commerce\b`), "ecommerce shop"},
	{regexp.MustCompile(`\b(?:would|i'?d)\s+like\s+to\b`), "want to"},
}

var (
	tokenPattern   = regexp.MustCompile(`[a-z0-9]+`)
	sentenceSplit  = regexp.MustCompile(`[.!?\n]+`)
	asARolePattern = regexp.MustCompile(`\bas an? ((?:[a-z-]+ ){0,2}?[a-z-]+)\s*(?:,|\bi\b|\bwe\b)`)
)

// stopwords never count as roles or keywords.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"i": true, "we": true, "want": true, "to": true, "so": true, "that": true,
	"as": true, "can": true, "be": true, "my": true, "of": true, "in": true,
	"on": true, "for": true, "with": true, "it": true, "is": true,
}

var (
	domainStems  = map[DomainTag]map[string]bool{}
	actorStems   = map[string]string{}
	actionStems  = map[string]string{}
	longActors   []string
	indicatorSet = map[string]bool{}
)

func init() {
	for tag, words := range domainKeywords {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[porter2.Stem(w)] = true
		}
		domainStems[tag] = set
	}
	for _, w := range actorVocabulary {
		actorStems[porter2.Stem(w)] = w
		if len(w) >= fuzzyMinLength {
			longActors = append(longActors, w)
		}
	}
	for _, w := range actionVocabulary {
		actionStems[porter2.Stem(w)] = w
	}
	for _, w := range complexityIndicators {
		indicatorSet[porter2.Stem(w)] = true
	}
}
