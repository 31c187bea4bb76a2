/*
Package seed ingests sample user stories and their test cases into the
learning store.

A seed file is a JSON array of {"userStory": ..., "testCases": [...]}. Each
story gets a deterministic id derived from its text, so re-ingesting the same
file is a no-op.
*/
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/khanglvm/casebank/internal/learning"
	"github.com/khanglvm/casebank/internal/model"
)

// IDPrefix marks request ids assigned to seeded samples.
const IDPrefix = "seed-"

// Sample is one seeded user story.
type Sample struct {
	UserStory string           `json:"userStory"`
	TestCases []model.TestCase `json:"testCases"`
}

// Recorder persists one example.
type Recorder interface {
	Record(ctx context.Context, e learning.Entry) (model.StoredExample, error)
}

// Result counts the outcome of an ingestion.
type Result struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (r *Result) add(other Result) {
	r.Added += other.Added
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// ID returns the deterministic request id for a story.
func ID(story string) string {
	return IDPrefix + strconv.FormatUint(xxhash.Sum64String(strings.TrimSpace(story)), 16)
}

// Parse decodes a seed file body.
func Parse(data []byte) ([]Sample, error) {
	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	return samples, nil
}

// LoadFile reads and decodes a seed file.
func LoadFile(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	samples, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Ingest records every sample with a non-empty story. Samples already in the
// store are counted as skipped. Ingestion stops early only when ctx ends.
func Ingest(ctx context.Context, rec Recorder, samples []Sample) (Result, error) {
	var res Result
	var errs []error

	for _, sm := range samples {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		story := strings.TrimSpace(sm.UserStory)
		if story == "" {
			res.Skipped++
			continue
		}

		_, err := rec.Record(ctx, learning.Entry{
			RequestID: ID(story),
			Text:      story,
			Output:    sm.TestCases,
			Source:    model.SourceSample,
		})
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, model.ErrAlreadyRecorded):
			res.Skipped++
		default:
			res.Failed++
			errs = append(errs, err)
		}
	}

	return res, errors.Join(errs...)
}

// IngestFile loads path and ingests its samples.
func IngestFile(ctx context.Context, rec Recorder, path string) (Result, error) {
	samples, err := LoadFile(path)
	if err != nil {
		return Result{}, err
	}
	return Ingest(ctx, rec, samples)
}

// Match reports whether rel, a slash-separated path relative to the seed
// directory, matches any pattern.
func Match(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// ScanDir ingests every file under root matching patterns, in lexical order.
// Unreadable or malformed files are reported but do not stop the scan.
func ScanDir(ctx context.Context, rec Recorder, root string, patterns []string) (Result, error) {
	fsys := os.DirFS(root)

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return Result{}, fmt.Errorf("invalid seed pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)

	var total Result
	var errs []error
	for _, rel := range files {
		res, err := IngestFile(ctx, rec, filepath.Join(root, filepath.FromSlash(rel)))
		total.add(res)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			if res == (Result{}) {
				// The file itself could not be loaded
				total.Failed++
			}
			errs = append(errs, err)
		}
	}

	return total, errors.Join(errs...)
}

// isDir reports whether path is an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
