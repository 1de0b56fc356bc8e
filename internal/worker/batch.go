package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/concord/internal/model"
)

// SourceValidator validates one source reference (file path or URL)
type SourceValidator interface {
	ValidateSource(ctx context.Context, ref string) (*model.SourceValidationResult, error)
}

// BatchResult is the outcome for one source
type BatchResult struct {
	Source string
	Result *model.SourceValidationResult
	Error  error
}

// GetError returns the error from the batch result
func (r *BatchResult) GetError() error {
	return r.Error
}

// BatchProcessor validates many sources with bounded concurrency. One
// failing source never cancels the others.
type BatchProcessor struct {
	validator   SourceValidator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(validator SourceValidator, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		validator:   validator,
		concurrency: concurrency,
	}
}

// ProcessSources validates every source and returns results in input order
func (b *BatchProcessor) ProcessSources(ctx context.Context, sources []string) []*BatchResult {
	results := make([]*BatchResult, len(sources))
	if len(sources) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &BatchResult{Source: src, Error: err}
				return nil
			}
			res, err := b.validator.ValidateSource(ctx, src)
			results[i] = &BatchResult{Source: src, Result: res, Error: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ProcessFile reads source references from a list file and validates them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*BatchResult, error) {
	sources, err := ReadSourcesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return b.ProcessSources(ctx, sources), nil
}

// ReadSourcesFromFile reads one source reference per line. Blank lines and
// # comments are skipped; duplicates keep their first position.
func ReadSourcesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			sources = append(sources, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return sources, nil
}

// Summary counts successes and failures
func Summary(results []*BatchResult) (succeeded, failed int) {
	for _, r := range results {
		if r == nil || r.Error != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}
