package repository

import "gorm.io/gorm"

const MaxPageSize = 100

// ListOptions selects one page of a listing. A zero Page returns the full list.
type ListOptions struct {
	Page int
	Size int
}

func (o ListOptions) Paginated() bool {
	return o.Page > 0
}

func (o ListOptions) pageSize() int {
	switch {
	case o.Size <= 0:
		return 10
	case o.Size > MaxPageSize:
		return MaxPageSize
	default:
		return o.Size
	}
}

// Page is one page of results plus the total number of matching rows
type Page[T any] struct {
	List     []T
	Page     int
	PageSize int
	Total    int64
}

// findPage counts the rows matched by query and loads the requested page into dest
func findPage[M any](query *gorm.DB, opts ListOptions, dest *[]M) (int64, error) {
	// Count and Find must not share one statement
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}

	if opts.Paginated() {
		size := opts.pageSize()
		query = query.Offset((opts.Page - 1) * size).Limit(size)
	}

	if err := query.Order("id DESC").Find(dest).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func newPage[T any](list []T, opts ListOptions, total int64) *Page[T] {
	page := &Page[T]{List: list, Total: total}
	if opts.Paginated() {
		page.Page = opts.Page
		page.PageSize = opts.pageSize()
	} else {
		page.Page = 1
		page.PageSize = len(list)
	}
	return page
}
