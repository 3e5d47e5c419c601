package batch

import (
	"context"
	"fmt"
)

// Chunks splits items into contiguous slices of size. The last slice holds
// the remainder. The returned slices share the backing array of items.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// chunkResult is the outcome of one chunk, discarded after merging.
type chunkResult[T any] struct {
	index       int
	items       []T
	processed   int
	errors      []string
	interrupted bool
}

// runChunk processes one chunk sequentially. offset is the input index of the
// chunk's first item and is used to label errors.
func runChunk[T any](ctx context.Context, index, offset int, chunk []T, fn Transform[T], keep bool) chunkResult[T] {
	res := chunkResult[T]{index: index}
	if keep {
		res.items = make([]T, 0, len(chunk))
	}

	for i, item := range chunk {
		if err := ctx.Err(); err != nil {
			res.interrupted = true
			res.errors = append(res.errors,
				fmt.Sprintf("chunk %d interrupted after %d of %d items: %v", index, i, len(chunk), err))
			return res
		}

		out, err := apply(ctx, fn, item)
		if err != nil {
			res.errors = append(res.errors, fmt.Sprintf("item %d: %v", offset+i, err))
			continue
		}

		res.processed++
		if keep {
			res.items = append(res.items, out)
		}
	}

	return res
}

// apply calls fn and converts a panic into an error.
func apply[T any](ctx context.Context, fn Transform[T], item T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrItemPanic, r)
		}
	}()
	return fn(ctx, item)
}
