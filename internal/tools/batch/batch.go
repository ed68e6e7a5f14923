package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teemow/applytrack/internal/apperr"
)

// Item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// MaxItems caps the ids one tool call may name.
const MaxItems = 20

// Result is the outcome for one id of a batch.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// BatchResult aggregates the outcomes of a batch.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray parses a parameter that can be either a single string
// or an array of strings. Duplicates are dropped, keeping the first
// occurrence.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var result []string

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		result = []string{v}
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		seen := make(map[string]bool, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			if seen[str] {
				continue
			}
			seen[str] = true
			result = append(result, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	if len(result) > MaxItems {
		return nil, fmt.Errorf("%s names %d items, at most %d are allowed", paramName, len(result), MaxItems)
	}
	return result, nil
}

// Summarize counts the outcomes of results.
func Summarize(results []Result) BatchResult {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			br.Successful++
		case StatusSkipped:
			br.Skipped++
		default:
			br.Failed++
		}
	}
	return br
}

// FormatResults renders br as indented JSON.
func FormatResults(br BatchResult) string {
	jsonBytes, _ := json.MarshalIndent(br, "", "  ")
	return string(jsonBytes)
}

// ProcessBatch runs fn for each id in order. A credential error makes every
// later id fail the same way, so the remaining ids are skipped instead of
// being attempted. A cancelled ctx skips the rest as well.
func ProcessBatch(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (any, error)) []Result {
	results := make([]Result, 0, len(ids))

	var abort error
	for _, id := range ids {
		if abort == nil {
			abort = ctx.Err()
		}
		if abort != nil {
			results = append(results, Result{
				ID:     id,
				Status: StatusSkipped,
				Error:  abort.Error(),
				Code:   apperr.Code(abort),
			})
			continue
		}

		res, err := fn(ctx, id)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
			if apperr.IsCredential(err) {
				abort = err
			}
			continue
		}
		results = append(results, NewSuccessResult(id, res))
	}

	return results
}

// NewSuccessResult creates a success result.
func NewSuccessResult(id string, result any) Result {
	return Result{
		ID:     id,
		Status: StatusSuccess,
		Result: result,
	}
}

// NewErrorResult creates an error result carrying the apperr code of err.
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: StatusError,
		Error:  err.Error(),
		Code:   apperr.Code(err),
	}
}
