package features

import (
	"encoding/json"
	"fmt"
)

// DomainTag is a coarse request category from a closed vocabulary.
type DomainTag int

const (
	Generic DomainTag = iota
	Commerce
	Identity
	Payments
	Social
	Search
	Mobile
)

// taggedDomains is the tie-break order for classification.
var taggedDomains = []DomainTag{Commerce, Identity, Payments, Social, Search, Mobile}

var domainNames = map[DomainTag]string{
	Generic:  "generic",
	Commerce: "commerce",
	Identity: "identity/auth",
	Payments: "payments",
	Social:   "social",
	Search:   "search",
	Mobile:   "mobile",
}

func (d DomainTag) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DomainTag(%d)", int(d))
}

// ParseDomain maps a stored tag name back to its DomainTag. Unknown names are Generic.
func ParseDomain(name string) DomainTag {
	for tag, n := range domainNames {
		if n == name {
			return tag
		}
	}
	return Generic
}

func (d DomainTag) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DomainTag) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*d = ParseDomain(name)
	return nil
}

// ComplexityTier is an ordinal size/breadth estimate.
type ComplexityTier int

const (
	Low ComplexityTier = iota
	Medium
	High
)

func (c ComplexityTier) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("ComplexityTier(%d)", int(c))
	}
}

// ParseTier maps a stored tier name back to its ComplexityTier. Unknown names are Low.
func ParseTier(name string) ComplexityTier {
	switch name {
	case "medium":
		return Medium
	case "high":
		return High
	default:
		return Low
	}
}

func (c ComplexityTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ComplexityTier) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*c = ParseTier(name)
	return nil
}
