package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Resource is the list/create/update/delete surface of one REST resource.
// T is the record type and In the create/update payload.
type Resource[T any, In any] struct {
	c    *Client
	path string
}

func (r *Resource[T, In]) Path() string {
	return r.path
}

func (r *Resource[T, In]) List(ctx context.Context, params url.Values) (Page[T], error) {
	var page Page[T]
	err := r.c.do(ctx, http.MethodGet, r.path, params, nil, func(raw []byte) error {
		var err error
		page, err = DecodePage[T](raw)
		return err
	})
	if err != nil {
		return Page[T]{}, err
	}
	if page.Data == nil {
		page = NewPage[T](nil)
	}
	return page, nil
}

func (r *Resource[T, In]) Create(ctx context.Context, in In) (T, error) {
	return r.write(ctx, http.MethodPost, r.path, in)
}

func (r *Resource[T, In]) Update(ctx context.Context, id int64, in In) (T, error) {
	return r.write(ctx, http.MethodPut, r.itemPath(id), in)
}

func (r *Resource[T, In]) Delete(ctx context.Context, id int64, params url.Values) error {
	return r.c.do(ctx, http.MethodDelete, r.itemPath(id), params, nil, nil)
}

func (r *Resource[T, In]) write(ctx context.Context, method, path string, in In) (T, error) {
	var out T
	err := r.c.do(ctx, method, path, nil, in, func(raw []byte) error {
		var err error
		out, err = DecodeRecord[T](raw)
		return err
	})
	return out, err
}

func (r *Resource[T, In]) itemPath(id int64) string {
	return r.path + "/" + strconv.FormatInt(id, 10)
}
