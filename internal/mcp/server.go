/*
Package mcp implements the MCP server that exposes the retrieval engine.

The server uses stdio transport and exposes 4 tools:
  - casebank_retrieve: Rank past examples for a new user story
  - casebank_record: Store the test cases generated for a retrieval
  - casebank_feedback: Rate a stored example, optionally with corrected test cases
  - casebank_stats: Learning store totals

A retrieval is remembered until it is recorded so the record call reuses its
request id, timestamp and embedding. Only the most recent retrievals are kept.
*/
package mcp

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/khanglvm/casebank/internal/engine"
	"github.com/khanglvm/casebank/internal/ranking"
	"github.com/khanglvm/casebank/internal/version"
)

const (
	// defaultPendingSize bounds the retrievals awaiting a record call.
	defaultPendingSize = 256

	// defaultRecordWait is how long casebank_record waits for the durable write
	// before answering that it continues in the background.
	defaultRecordWait = 10 * time.Second
)

// Server represents the casebank MCP server.
type Server struct {
	engine     *engine.Engine
	server     *mcp.Server
	pending    *pendingRetrievals
	recordWait time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithPendingSize sets how many unrecorded retrievals are remembered.
func WithPendingSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pending = newPendingRetrievals(n)
		}
	}
}

// WithRecordWait sets how long casebank_record waits for its write.
func WithRecordWait(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.recordWait = d
		}
	}
}

// NewServer creates a new MCP server over eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:     eng,
		pending:    newPendingRetrievals(defaultPendingSize),
		recordWait: defaultRecordWait,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "casebank",
		Version: version.Version,
	}, nil)
	s.registerTools()

	return s
}

// Run serves over stdio until ctx ends or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name: "casebank_retrieve",
		Description: `Find past user stories similar to a new one, with their test cases.

WHEN TO USE: Before generating test cases for a user story. Use the returned
examples as templates; corrected test cases are returned for strong matches.

WORKFLOW:
1. casebank_retrieve(story) → requestId + ranked examples
2. generate test cases using the examples
3. casebank_record(request_id, test_cases) → the result is learned
4. casebank_feedback(request_id, rating) once a reviewer has rated it`,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"story": {
					Type:        "string",
					Description: "User story or feature description",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum examples to return (default from settings)",
					Maximum:     ptr(float64(ranking.MaxLimit)),
				},
			},
			Required: []string{"story"},
		},
	}, s.handleRetrieve)

	s.server.AddTool(&mcp.Tool{
		Name: "casebank_record",
		Description: `Store the test cases generated for a user story so future retrievals can use them.

Pass the request_id from casebank_retrieve. Without one, pass the story and a new id is assigned.`,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"request_id": {
					Type:        "string",
					Description: "requestId returned by casebank_retrieve",
				},
				"story": {
					Type:        "string",
					Description: "User story, required when request_id is unknown",
				},
				"test_cases": testCasesSchema("Generated test cases in order"),
			},
			Required: []string{"test_cases"},
		},
	}, s.handleRecord)

	s.server.AddTool(&mcp.Tool{
		Name: "casebank_feedback",
		Description: `Rate the test cases stored for a request (0 to 5). Ratings are averaged.

Corrected test cases, if given, are kept next to the original and preferred on future strong matches.`,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"request_id": {
					Type:        "string",
					Description: "requestId of the recorded example",
				},
				"rating": {
					Type:        "number",
					Description: "Rating from 0.0 to 5.0",
				},
				"comments": {
					Type:        "string",
					Description: "Reviewer comments",
				},
				"corrected_test_cases": testCasesSchema("Reviewer-corrected test cases"),
			},
			Required: []string{"request_id", "rating"},
		},
	}, s.handleFeedback)

	s.server.AddTool(&mcp.Tool{
		Name:        "casebank_stats",
		Description: "Learning store totals: recorded examples, feedback received, last update and embedding model.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleStats)
}

func testCasesSchema(description string) *jsonschema.Schema {
	str := func(d string) *jsonschema.Schema { return &jsonschema.Schema{Type: "string", Description: d} }
	return &jsonschema.Schema{
		Type:        "array",
		Description: description,
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id":            str("Test case id, e.g. TC-1"),
				"title":         str("Short title"),
				"preconditions": str("Preconditions"),
				"steps":         str("Steps to execute"),
				"expected":      str("Expected result"),
				"priority":      str("High, Medium or Low"),
			},
			Required: []string{"title"},
		},
	}
}

func ptr(f float64) *float64 { return &f }
