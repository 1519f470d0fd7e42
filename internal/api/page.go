package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"fintrack/internal/core"
)

type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Totals are the running sums the transactions endpoint returns alongside
// a page.
type Totals struct {
	Income   core.Money `json:"income"`
	Expenses core.Money `json:"expenses"`
}

// Page is the canonical list shape.
type Page[T any] struct {
	Data   []T     `json:"data"`
	Meta   Meta    `json:"meta"`
	Totals *Totals `json:"totals,omitempty"`
}

// Len is the number of records in the page.
func (p Page[T]) Len() int {
	return len(p.Data)
}

// NewPage wraps records in a single-page envelope.
func NewPage[T any](data []T) Page[T] {
	return Page[T]{Data: data, Meta: singlePageMeta(len(data))}
}

func singlePageMeta(n int) Meta {
	return Meta{CurrentPage: 1, LastPage: 1, PerPage: n, Total: n}
}

// DecodePage accepts either a bare JSON array or an object envelope
// {data, meta, totals}. Missing meta describes a single page.
func DecodePage[T any](raw []byte) (Page[T], error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NewPage[T](nil), nil
	}

	if raw[0] == '[' {
		var data []T
		if err := json.Unmarshal(raw, &data); err != nil {
			return Page[T]{}, err
		}
		return NewPage(data), nil
	}

	var env struct {
		Data   json.RawMessage `json:"data"`
		Meta   *Meta           `json:"meta"`
		Totals *Totals         `json:"totals"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Page[T]{}, err
	}

	var page Page[T]
	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		if err := json.Unmarshal(data, &page.Data); err != nil {
			return Page[T]{}, err
		}
	case data[0] == '{':
		// Paginator nested one level deeper: {data: {data: [...], current_page: ...}}.
		nested, err := decodePaginator[T](data)
		if err != nil {
			return Page[T]{}, err
		}
		page = nested
	default:
		return Page[T]{}, fmt.Errorf("unexpected data field %.20s", data)
	}

	if env.Meta != nil {
		page.Meta = *env.Meta
	} else if page.Meta == (Meta{}) {
		page.Meta = singlePageMeta(len(page.Data))
	}
	if env.Totals != nil {
		page.Totals = env.Totals
	}
	return page, nil
}

func decodePaginator[T any](raw []byte) (Page[T], error) {
	var p struct {
		Data []T `json:"data"`
		Meta
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Data: p.Data, Meta: p.Meta}
	if page.Meta == (Meta{}) {
		page.Meta = singlePageMeta(len(p.Data))
	}
	return page, nil
}

// DecodeRecord accepts a bare object or one wrapped in {data: {...}}.
func DecodeRecord[T any](raw []byte) (T, error) {
	var zero T
	raw = bytes.TrimSpace(raw)

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == '{' {
			raw = d
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}
