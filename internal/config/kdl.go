package config

import (
	"fmt"
	"log"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// decodeKDL reads the settings block layout:
//
//	data_dir "~/.casebank"
//	embedder { type "ollama"; dimension 768; base_url "http://localhost:11434"; model "nomic-embed-text" }
//	retrieval { limit 5; oversample 4; strong_match 0.75 }
//	recency { half_life_hours 336; horizon_days 180 }
//	timeouts { embed_seconds 10; write_seconds 5 }
//	commit { workers 4; queue_size 1000; max_attempts 3; backoff_millis 100 }
//	seeds { dir "./samples"; patterns "**/*.json" "**/*.seed.json" }
//
// Unknown nodes are ignored. Omitted values stay zero and take defaults later.
func decodeKDL(data []byte) (*Config, error) {
	doc, err := kdl.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}

	s := &Settings{}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "data_dir":
			if v, ok := firstStringArg(n); ok {
				s.DataDir = v
			}
		case "embedder":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "type":
					setString(cn, &s.Embedder.Type)
				case "dimension":
					setInt(cn, &s.Embedder.Dimension)
				case "base_url":
					setString(cn, &s.Embedder.BaseURL)
				case "model":
					setString(cn, &s.Embedder.Model)
				}
			}
		case "retrieval":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "limit":
					setInt(cn, &s.Retrieval.Limit)
				case "oversample":
					setInt(cn, &s.Retrieval.Oversample)
				case "strong_match":
					if v, ok := firstFloatArg(cn); ok {
						s.Retrieval.StrongMatch = v
					}
				}
			}
		case "recency":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "half_life_hours":
					setInt(cn, &s.Recency.HalfLifeHours)
				case "horizon_days":
					setInt(cn, &s.Recency.HorizonDays)
				}
			}
		case "timeouts":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "embed_seconds":
					setInt(cn, &s.Timeouts.EmbedSeconds)
				case "write_seconds":
					setInt(cn, &s.Timeouts.WriteSeconds)
				}
			}
		case "commit":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "workers":
					setInt(cn, &s.Commit.Workers)
				case "queue_size":
					setInt(cn, &s.Commit.QueueSize)
				case "max_attempts":
					setInt(cn, &s.Commit.MaxAttempts)
				case "backoff_millis":
					setInt(cn, &s.Commit.BackoffMillis)
				}
			}
		case "seeds":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "dir":
					setString(cn, &s.Seeds.Dir)
				case "patterns":
					s.Seeds.Patterns = collectStringArgs(cn)
				}
			}
		}
	}

	return &Config{Settings: s}, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func setString(n *document.Node, dst *string) {
	if v, ok := firstStringArg(n); ok {
		*dst = v
	}
}

func setInt(n *document.Node, dst *int) {
	if v, ok := firstIntArg(n); ok {
		*dst = v
	}
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		log.Printf("Warning: invalid integer for '%s' in KDL config, got %T", nodeName(n), v)
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("Warning: invalid number for '%s' in KDL config, got %T", nodeName(n), v)
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func collectStringArgs(n *document.Node) []string {
	var out []string
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func errKDLReadOnly(path string) error {
	return &InvalidConfigError{
		Path:    path,
		Message: "KDL config files are read-only",
		Hint:    "Save to a .json, .yaml or .toml file instead",
		Err:     fmt.Errorf("cannot encode KDL"),
	}
}
