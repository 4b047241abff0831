package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cs414s24/contacts/contacts"
)

type handler[I, O any] = func(context.Context, *I) (*O, error)

func handlerWithErrorHandler[I, O any](handler handler[I, O], do func(context.Context, error)) handler[I, O] {
	if do == nil {
		return handler
	}

	return func(ctx context.Context, i *I) (*O, error) {
		o, err := handler(ctx, i)
		if err != nil {
			do(ctx, err)
		}
		return o, err
	}
}

func opErrors(codes ...int) func(*huma.Operation) {
	return func(o *huma.Operation) { o.Errors = codes }
}

// statusError is a huma response error that keeps its cause in the chain.
type statusError struct {
	*huma.ErrorModel
	cause error
}

func (e *statusError) Unwrap() error { return e.cause }

// notFound turns a missing contact into a 404 response.
func notFound(err error) error {
	if errors.Is(err, contacts.ErrNotFound) {
		return &statusError{&huma.ErrorModel{
			Status: http.StatusNotFound,
			Title:  http.StatusText(http.StatusNotFound),
			Detail: contacts.NotFoundDetail,
			Errors: []*huma.ErrorDetail{{Message: err.Error()}},
		}, err}
	}
	return err
}

// handleError reports errors of streaming operations, which have no
// response left to carry them.
func (h *Contacts) handleError(ctx context.Context, err error) {
	if h.ErrorHandler != nil {
		h.ErrorHandler(ctx, err)
	}
}
