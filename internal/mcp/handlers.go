package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/khanglvm/casebank/internal/feedback"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/ranking"
	"github.com/khanglvm/casebank/internal/retrieval"
)

// RetrieveParams are the casebank_retrieve arguments.
type RetrieveParams struct {
	Story string `json:"story"`
	Limit int    `json:"limit,omitempty"`
}

// RecordParams are the casebank_record arguments.
type RecordParams struct {
	RequestID string           `json:"request_id,omitempty"`
	Story     string           `json:"story,omitempty"`
	TestCases []model.TestCase `json:"test_cases"`
}

// FeedbackParams are the casebank_feedback arguments.
type FeedbackParams struct {
	RequestID          string           `json:"request_id"`
	Rating             *float64         `json:"rating"`
	Comments           string           `json:"comments,omitempty"`
	CorrectedTestCases []model.TestCase `json:"corrected_test_cases,omitempty"`
}

// RetrieveResponse is the casebank_retrieve result.
type RetrieveResponse struct {
	RequestID  string        `json:"requestId"`
	Domain     string        `json:"domain"`
	Complexity string        `json:"complexity"`
	Degraded   bool          `json:"degraded,omitempty"`
	Fallback   bool          `json:"fallback,omitempty"`
	Examples   []ExampleView `json:"examples"`

	// SuggestedCases merges the examples' test cases, padded with domain edge cases.
	SuggestedCases []model.TestCase `json:"suggestedCases"`
}

// ExampleView is one ranked example as shown to the client.
type ExampleView struct {
	RequestID    string           `json:"requestId"`
	Story        string           `json:"story"`
	Score        float64          `json:"score"`
	Signals      ranking.Signals  `json:"signals"`
	QualityScore float64          `json:"qualityScore"`
	Source       string           `json:"source"`
	Corrected    bool             `json:"corrected,omitempty"`
	TestCases    []model.TestCase `json:"testCases"`
}

// RecordResponse is the casebank_record result.
type RecordResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// FeedbackResponse is the casebank_feedback result.
type FeedbackResponse struct {
	RequestID     string  `json:"requestId"`
	QualityScore  float64 `json:"qualityScore"`
	FeedbackCount int     `json:"feedbackCount"`
}

func (s *Server) handleRetrieve(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params RetrieveParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("casebank_retrieve", fmt.Errorf("invalid parameters: %w", err), `Use: {"story": "As a user, I want ..."}`)
	}
	if strings.TrimSpace(params.Story) == "" {
		return createErrorResponse("casebank_retrieve", errors.New("story is required"), "")
	}

	r, err := s.engine.Retrieval.Retrieve(ctx, params.Story, params.Limit)
	if err != nil {
		return createErrorResponse("casebank_retrieve", err, "")
	}
	s.pending.put(r)

	return createJSONResponse(NewRetrieveResponse(r, s.engine.Settings.Retrieval.StrongMatch))
}

// NewRetrieveResponse builds the client view of a retrieval. Corrected test cases
// replace the originals on examples scoring at least strongMatch.
func NewRetrieveResponse(r *retrieval.Retrieval, strongMatch float64) RetrieveResponse {
	templates := r.Templates()
	resp := RetrieveResponse{
		RequestID:  r.RequestID,
		Domain:     r.Fingerprint.Domain.String(),
		Complexity: r.Fingerprint.Complexity.String(),
		Degraded:   r.Degraded,
		Fallback:   r.Fallback,
		Examples:   make([]ExampleView, 0, len(r.Examples)),

		SuggestedCases: r.MergedTemplates(0),
	}
	for i, ex := range r.Examples {
		resp.Examples = append(resp.Examples, ExampleView{
			RequestID:    ex.Example.RequestID,
			Story:        ex.Example.RequestText,
			Score:        ex.Score,
			Signals:      ex.Signals,
			QualityScore: ex.Example.QualityScore,
			Source:       ex.Example.Source,
			Corrected:    ex.Example.HasCorrection() && ex.Score >= strongMatch,
			TestCases:    templates[i],
		})
	}
	return resp
}

func (s *Server) handleRecord(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params RecordParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("casebank_record", fmt.Errorf("invalid parameters: %w", err), "")
	}

	var commit *retrieval.Commit
	r, ok := s.pending.take(params.RequestID)
	switch {
	case ok:
		commit = s.engine.Retrieval.Record(r, params.TestCases)
	case strings.TrimSpace(params.Story) != "":
		commit = s.engine.Retrieval.RecordText(params.Story, params.TestCases)
	default:
		return createErrorResponse("casebank_record",
			fmt.Errorf("unknown request_id %q", params.RequestID),
			"Call casebank_retrieve first, or pass the story to record without one")
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.recordWait)
	defer cancel()

	_, err := commit.Wait(waitCtx)
	switch {
	case err == nil:
		return createJSONResponse(RecordResponse{RequestID: commit.RequestID, Status: "recorded"})
	case waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()):
		// The commit keeps running; the client does not need to wait for it
		return createJSONResponse(RecordResponse{RequestID: commit.RequestID, Status: "pending"})
	case errors.Is(err, model.ErrAlreadyRecorded):
		return createJSONResponse(RecordResponse{RequestID: commit.RequestID, Status: "already_recorded"})
	default:
		if r != nil && model.IsRetryable(err) {
			s.pending.put(r)
		}
		return createErrorResponse("casebank_record", err, "The examples already returned are unaffected; retry later")
	}
}

func (s *Server) handleFeedback(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params FeedbackParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("casebank_feedback", fmt.Errorf("invalid parameters: %w", err), "")
	}
	if params.RequestID == "" || params.Rating == nil {
		return createErrorResponse("casebank_feedback", errors.New("request_id and rating are required"), "")
	}

	ex, err := s.engine.Feedback.Submit(ctx, feedback.Submission{
		RequestID:       params.RequestID,
		Rating:          *params.Rating,
		Comments:        params.Comments,
		CorrectedOutput: params.CorrectedTestCases,
	})
	if err != nil {
		hint := ""
		switch {
		case errors.Is(err, model.ErrInvalidRating):
			hint = "Rating must be between 0.0 and 5.0"
		case errors.Is(err, model.ErrNotFound):
			hint = "Record the test cases with casebank_record before rating them"
		}
		return createErrorResponse("casebank_feedback", err, hint)
	}

	return createJSONResponse(FeedbackResponse{
		RequestID:     ex.RequestID,
		QualityScore:  ex.QualityScore,
		FeedbackCount: ex.FeedbackCount,
	})
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := s.engine.Stats()
	return createJSONResponse(map[string]interface{}{
		"totalRecorded":         stats.TotalRecorded,
		"totalFeedbackReceived": stats.TotalFeedbackReceived,
		"lastUpdatedAt":         formatTime(stats.LastUpdatedAt),
		"embeddingModel":        stats.EmbeddingModel,
		"dimension":             stats.Dimension,
		"pendingRetrievals":     s.pending.len(),
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
