package retrieval

import (
	"strings"

	"github.com/khanglvm/casebank/internal/features"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/ranking"
)

// edgeCases pads thin results with coverage every story in a domain needs.
var edgeCases = map[features.DomainTag][]model.TestCase{
	features.Commerce: {
		{
			ID:            "edge-commerce-1",
			Title:         "Edge: Out of stock item handling",
			Preconditions: "Product inventory is 0",
			Steps:         "Attempt to add out-of-stock item to cart",
			Expected:      "Clear out-of-stock message, no cart addition",
			Priority:      "High",
		},
		{
			ID:            "edge-commerce-2",
			Title:         "Edge: Cart persistence across sessions",
			Preconditions: "User has items in cart",
			Steps:         "Log out and log back in",
			Expected:      "Cart items remain preserved",
			Priority:      "Medium",
		},
	},
	features.Identity: {
		{
			ID:            "edge-identity-1",
			Title:         "Edge: Multiple failed login attempts",
			Preconditions: "User account exists",
			Steps:         "Enter wrong password 5 times consecutively",
			Expected:      "Account temporarily locked with clear message",
			Priority:      "Critical",
		},
		{
			ID:            "edge-identity-2",
			Title:         "Edge: Expired session",
			Preconditions: "User is logged in and the session has expired",
			Steps:         "Perform an action that requires authentication",
			Expected:      "User is asked to log in again and no data is lost",
			Priority:      "High",
		},
	},
	features.Payments: {
		{
			ID:            "edge-payments-1",
			Title:         "Edge: Declined card",
			Preconditions: "Card will be declined by the processor",
			Steps:         "Submit payment with the declined card",
			Expected:      "Clear decline message, no order or charge created",
			Priority:      "Critical",
		},
		{
			ID:            "edge-payments-2",
			Title:         "Edge: Duplicate submission",
			Preconditions: "Payment form is filled in",
			Steps:         "Press the pay button twice quickly",
			Expected:      "Exactly one charge is made",
			Priority:      "High",
		},
	},
	features.Social: {
		{
			ID:            "edge-social-1",
			Title:         "Edge: Content from a blocked user",
			Preconditions: "User has blocked another user",
			Steps:         "Open the feed and notifications",
			Expected:      "No content from the blocked user is shown",
			Priority:      "High",
		},
	},
	features.Search: {
		{
			ID:            "edge-search-1",
			Title:         "Edge: Search with no results",
			Preconditions: "Catalog contains no matching items",
			Steps:         "Search for a term with no matches",
			Expected:      "Empty state with suggestions, no error",
			Priority:      "Medium",
		},
		{
			ID:            "edge-search-2",
			Title:         "Edge: Special characters in query",
			Preconditions: "Search is available",
			Steps:         "Search for a term containing quotes and symbols",
			Expected:      "Query is handled safely and results are relevant",
			Priority:      "Medium",
		},
	},
	features.Mobile: {
		{
			ID:            "edge-mobile-1",
			Title:         "Edge: App backgrounded mid-action",
			Preconditions: "User is completing an action in the app",
			Steps:         "Send the app to the background and return",
			Expected:      "Progress is preserved",
			Priority:      "High",
		},
	},
	features.Generic: {
		{
			ID:            "edge-generic-1",
			Title:         "Edge: Network interruption handling",
			Preconditions: "User performing action",
			Steps:         "Disconnect network during operation",
			Expected:      "Graceful error handling, retry mechanism",
			Priority:      "High",
		},
	},
}

// fallbackCases are served when ranking failed outright.
var fallbackCases = []model.TestCase{
	{
		ID:            "fallback-1",
		Title:         "Basic functionality validation",
		Preconditions: "System is accessible",
		Steps:         "Perform core user action as described in story",
		Expected:      "Action completes successfully with expected outcome",
		Priority:      "High",
	},
}

// EdgeCases returns the edge cases for domain. Unknown domains get the generic set.
func EdgeCases(domain features.DomainTag) []model.TestCase {
	cases, ok := edgeCases[domain]
	if !ok {
		cases = edgeCases[features.Generic]
	}
	return append([]model.TestCase(nil), cases...)
}

// FallbackCases returns the cases served when ranking fails.
func FallbackCases() []model.TestCase {
	return append([]model.TestCase(nil), fallbackCases...)
}

// MergedTemplates flattens the templates of the ranked examples into at most
// n test cases, best example first, dropping repeated ids. Fewer than n cases
// are padded with the request domain's edge cases. A failed ranking yields the
// fallback cases. A non-positive n uses the retrieval's limit.
func (r *Retrieval) MergedTemplates(n int) []model.TestCase {
	if n <= 0 {
		n = r.limit
	}
	if n <= 0 {
		n = DefaultLimit
	}
	n = min(n, ranking.MaxLimit)
	if r.Fallback {
		return FallbackCases()
	}

	out := make([]model.TestCase, 0, n)
	seen := make(map[string]bool)
	add := func(tc model.TestCase) {
		if len(out) >= n {
			return
		}
		key := caseKey(tc)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, tc)
	}

	for _, cases := range r.Templates() {
		for _, tc := range cases {
			add(tc)
		}
	}
	for _, tc := range EdgeCases(r.Fingerprint.Domain) {
		add(tc)
	}
	return out
}

// caseKey identifies a test case for deduplication. Cases without an id are
// keyed by title.
func caseKey(tc model.TestCase) string {
	if tc.ID != "" {
		return "id:" + tc.ID
	}
	return "title:" + strings.ToLower(strings.TrimSpace(tc.Title))
}
