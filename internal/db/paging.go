package db

import "context"

// PageFunc fetches one page of rows at the given limit/offset.
type PageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// CollectPages drains a paged query in fixed batches, stopping after
// maxBatches. A full final batch at the cap means more rows may exist, so the
// result is flagged truncated instead of looping unboundedly.
func CollectPages[T any](ctx context.Context, batchSize, maxBatches int, page PageFunc[T]) ([]T, bool, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if maxBatches <= 0 {
		maxBatches = 1
	}
	var out []T
	truncated := false
	offset := 0
	for i := 0; i < maxBatches; i++ {
		rows, err := page(ctx, batchSize, offset)
		if err != nil {
			return nil, false, err
		}
		if len(rows) == 0 {
			break
		}
		out = append(out, rows...)
		if len(rows) < batchSize {
			break
		}
		offset += batchSize
		if i == maxBatches-1 {
			truncated = true
		}
	}
	return out, truncated, nil
}
