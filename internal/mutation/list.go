package mutation

import (
	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/query"
)

// Pages adapts a typed page edit to a cache updater. Entries holding
// anything other than api.Page[T] are left alone.
func Pages[T core.Entity](fn func(key query.Key, page api.Page[T]) (api.Page[T], bool)) query.Updater {
	return func(key query.Key, data any) (any, bool) {
		page, ok := data.(api.Page[T])
		if !ok {
			return nil, false
		}
		return fn(key, page)
	}
}

// Prepend returns a copy of page with rec first.
func Prepend[T core.Entity](page api.Page[T], rec T) api.Page[T] {
	data := make([]T, 0, len(page.Data)+1)
	data = append(data, rec)
	data = append(data, page.Data...)
	out := page
	out.Data = data
	out.Meta.Total++
	out.Totals = copyTotals(page.Totals)
	return out
}

// Replace returns a copy of page with the record id swapped for rec.
func Replace[T core.Entity](page api.Page[T], id int64, rec T) (api.Page[T], bool) {
	return Patch(page, id, func(T) T { return rec })
}

// Patch returns a copy of page with fn applied to the record id.
func Patch[T core.Entity](page api.Page[T], id int64, fn func(T) T) (api.Page[T], bool) {
	i := indexOf(page.Data, id)
	if i < 0 {
		return page, false
	}
	data := make([]T, len(page.Data))
	copy(data, page.Data)
	data[i] = fn(data[i])
	out := page
	out.Data = data
	out.Totals = copyTotals(page.Totals)
	return out, true
}

// Remove returns a copy of page without the record id, and the removed
// record.
func Remove[T core.Entity](page api.Page[T], id int64) (api.Page[T], T, bool) {
	var removed T
	i := indexOf(page.Data, id)
	if i < 0 {
		return page, removed, false
	}
	removed = page.Data[i]
	data := make([]T, 0, len(page.Data)-1)
	data = append(data, page.Data[:i]...)
	data = append(data, page.Data[i+1:]...)
	out := page
	out.Data = data
	if out.Meta.Total > 0 {
		out.Meta.Total--
	}
	out.Totals = copyTotals(page.Totals)
	return out, removed, true
}

// Find returns the record id from the first cached page holding it.
func Find[T core.Entity](s *query.Store, id int64, namespaces ...string) (T, bool) {
	for _, key := range s.Keys(namespaces...) {
		page, ok := query.Get[api.Page[T]](s, key)
		if !ok {
			continue
		}
		if i := indexOf(page.Data, id); i >= 0 {
			return page.Data[i], true
		}
	}
	var zero T
	return zero, false
}

func indexOf[T core.Entity](data []T, id int64) int {
	for i, rec := range data {
		if rec.EntityID() == id {
			return i
		}
	}
	return -1
}

func copyTotals(t *api.Totals) *api.Totals {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
