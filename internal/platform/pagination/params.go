// Package pagination parses pageSize, pageToken and orderBy query parameters and pages through
// ordered listings with opaque keyset tokens.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidOrderBy   = errors.New("pagination: invalid orderBy")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Order is one orderBy clause.
type Order struct {
	Field string
	Desc  bool
}

type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
	Orders    []Order
}

// Options describe what a listing endpoint accepts. Zero sizes fall back to the package defaults.
type Options struct {
	DefaultPageSize    int
	MaxPageSize        int
	AllowedOrderFields []string
}

func (o Options) sizes() (def, limit int) {
	limit = o.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	def = o.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	return min(def, limit), limit
}

func FromRequest(r *http.Request, opts Options) (Params, error) {
	return Parse(r.URL.Query(), opts)
}

// Parse reads paging parameters from values. pageSize above the maximum is clamped; orderBy
// accepts "field", "field desc" or "field:desc", comma separated or repeated, and the first
// clause for a field wins.
func Parse(values url.Values, opts Options) (Params, error) {
	var params Params
	var err error

	if params.PageSize, err = pageSize(values.Get("pageSize"), opts); err != nil {
		return Params{}, err
	}
	if token := strings.TrimSpace(values.Get("pageToken")); token != "" {
		if params.Cursor, err = DecodeToken(token); err != nil {
			return Params{}, err
		}
		params.PageToken = token
	}
	if params.Orders, err = orders(values["orderBy"], opts.AllowedOrderFields); err != nil {
		return Params{}, err
	}
	return params, nil
}

func pageSize(raw string, opts Options) (int, error) {
	def, limit := opts.sizes()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidPageSize, raw)
	case n <= 0:
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	return min(n, limit), nil
}

func orders(raw []string, allowed []string) ([]Order, error) {
	var out []Order
	for _, value := range raw {
		for _, clause := range strings.Split(value, ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			order, err := parseClause(clause)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(allowed, order.Field) {
				return nil, fmt.Errorf("%w: field %q is not allowed", ErrInvalidOrderBy, order.Field)
			}
			if slices.ContainsFunc(out, func(o Order) bool { return o.Field == order.Field }) {
				continue
			}
			out = append(out, order)
		}
	}
	return out, nil
}

func parseClause(clause string) (Order, error) {
	if !strings.Contains(clause, " ") {
		clause = strings.Replace(clause, ":", " ", 1)
	}
	parts := strings.Fields(clause)
	if len(parts) > 2 || !validField(parts[0]) {
		return Order{}, fmt.Errorf("%w: malformed clause %q", ErrInvalidOrderBy, clause)
	}
	order := Order{Field: parts[0]}
	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
		case "desc":
			order.Desc = true
		default:
			return Order{}, fmt.Errorf("%w: direction %q", ErrInvalidOrderBy, parts[1])
		}
	}
	return order, nil
}

func validField(field string) bool {
	return field != "" && strings.IndexFunc(field, func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0
}
