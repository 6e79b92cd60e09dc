package youtube

import "context"

// Collect calls fetch with successive cursors, starting from "", and hands
// every item to visit until a page has no next cursor. A cursor seen twice
// aborts with ErrCursorLoop.
func Collect[T any](ctx context.Context, fetch func(ctx context.Context, cursor string) (Page[T], error), visit func(T) error) error {
	seen := make(map[string]struct{})
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, cursor)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := visit(item); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		if _, dup := seen[page.NextCursor]; dup {
			return &RemoteError{Op: "paginate", Err: ErrCursorLoop}
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}

// CollectAll gathers every item of a paginated listing into a slice.
func CollectAll[T any](ctx context.Context, fetch func(ctx context.Context, cursor string) (Page[T], error)) ([]T, error) {
	var out []T
	err := Collect(ctx, fetch, func(item T) error {
		out = append(out, item)
		return nil
	})
	return out, err
}

// Chunk splits ids into slices of at most MaxIDsPerCall.
func Chunk(ids []string) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(len(ids), MaxIDsPerCall)
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
