package pagination

import "fmt"

// Slice cuts one page out of an already ordered slice. key must be unique per entry; the
// returned token is empty on the last page.
func Slice[T any](entries []T, params Params, key func(T) string) ([]T, string, error) {
	params = Must(params)
	start := 0
	if after := params.Cursor.After; after != "" {
		start = -1
		for i, entry := range entries {
			if key(entry) == after {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, "", fmt.Errorf("%w: cursor %q no longer in listing", ErrInvalidPageToken, after)
		}
	}

	end := start + params.PageSize
	if end >= len(entries) {
		return entries[start:], "", nil
	}
	next, err := EncodeToken(Cursor{After: key(entries[end-1])})
	if err != nil {
		return nil, "", err
	}
	return entries[start:end], next, nil
}

// Must ensures PageSize is always initialised with a sensible default before use.
func Must(params Params) Params {
	if params.PageSize <= 0 {
		params.PageSize = DefaultPageSize
	}
	return params
}
