package kgraph

import "time"

// Page carries both the request-side pagination parameters (normalised)
// and the response-side metadata returned alongside a page of results.
type Page struct {
	Offset    int           `json:"offset"`
	Limit     int           `json:"limit"`
	Returned  int           `json:"returned"`
	Total     *int          `json:"total,omitempty"`
	HasMore   bool          `json:"hasMore"`
	QueryTime time.Duration `json:"queryTime"`

	CurrentPage *int `json:"currentPage,omitempty"`
	TotalPages  *int `json:"totalPages,omitempty"`
}

// PageRequest is the caller-supplied pagination input. Either Offset/Limit
// or Page/PageSize may be set; [NormalizePageRequest] reconciles the two
// compatible forms into a single offset/limit pair.
type PageRequest struct {
	Offset     *int
	Limit      *int
	Page       *int
	PageSize   *int
	WithTotal  bool
}

// Limits bounds the page size a [PageRequest] may request.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// NormalizePageRequest reconciles offset/limit and page/pageSize into a
// single (offset, limit) pair clamped to lim, and reports whether a
// page-style request was used (so the response can include
// currentPage/totalPages).
func NormalizePageRequest(req PageRequest, lim Limits) (offset, limit int, pageStyle bool, err error) {
	limit = lim.DefaultLimit
	if limit <= 0 {
		limit = 20
	}
	maxLimit := lim.MaxLimit
	if maxLimit <= 0 {
		maxLimit = limit
	}

	switch {
	case req.Page != nil || req.PageSize != nil:
		pageStyle = true
		page := 1
		if req.Page != nil {
			page = *req.Page
		}
		if page < 1 {
			return 0, 0, false, newErr("normalize_page", KindInvalidArgument, "", errInvalidPage)
		}
		size := limit
		if req.PageSize != nil {
			size = *req.PageSize
		}
		if size < 1 {
			return 0, 0, false, newErr("normalize_page", KindInvalidArgument, "", errInvalidPageSize)
		}
		if size > maxLimit {
			size = maxLimit
		}
		offset = (page - 1) * size
		limit = size

	default:
		if req.Offset != nil {
			if *req.Offset < 0 {
				return 0, 0, false, newErr("normalize_page", KindInvalidArgument, "", errInvalidOffset)
			}
			offset = *req.Offset
		}
		if req.Limit != nil {
			if *req.Limit < 1 {
				return 0, 0, false, newErr("normalize_page", KindInvalidArgument, "", errInvalidLimit)
			}
			limit = *req.Limit
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	return offset, limit, pageStyle, nil
}

// BuildPage assembles the response-side [Page] metadata after a query
// returned `returned` rows (out of `limit` requested) and, when available,
// a `total` row count.
func BuildPage(offset, limit, returned int, total *int, pageStyle bool, elapsed time.Duration) Page {
	p := Page{
		Offset:    offset,
		Limit:     limit,
		Returned:  returned,
		Total:     total,
		QueryTime: elapsed,
	}
	p.HasMore = returned == limit
	if total != nil {
		p.HasMore = offset+returned < *total
	}
	if pageStyle {
		page := offset/limit + 1
		p.CurrentPage = &page
		if total != nil {
			totalPages := (*total + limit - 1) / limit
			if totalPages < 1 {
				totalPages = 1
			}
			p.TotalPages = &totalPages
		}
	}
	return p
}

var (
	errInvalidPage     = newStaticErr("page must be >= 1")
	errInvalidPageSize = newStaticErr("page_size must be >= 1")
	errInvalidOffset   = newStaticErr("offset must be >= 0")
	errInvalidLimit    = newStaticErr("limit must be >= 1")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func newStaticErr(s string) error { return staticErr(s) }
