// Package logctx enriches slog records with request-scoped data carried on
// the context: HTTP request metadata, the authenticated user and thread,
// and the action being dispatched.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and appends context-carried groups to every
// record.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if td, ok := ctx.Value(threadDataKey{}).(*ThreadData); ok {
		r.AddAttrs(slog.Group("thread",
			slog.String("id", td.ThreadID),
			slog.String("user_id", td.UserID),
		))
	}

	if ad, ok := ctx.Value(actionDataKey{}).(*ActionData); ok {
		r.AddAttrs(slog.Group("action",
			slog.String("name", ad.Name),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type threadDataKey struct{}

// ThreadData identifies the conversation thread and principal a request
// operates on.
type ThreadData struct {
	ThreadID string
	UserID   string
}

func WithThreadData(ctx context.Context, data *ThreadData) context.Context {
	return context.WithValue(ctx, threadDataKey{}, data)
}

type actionDataKey struct{}

// ActionData identifies the widget action being dispatched.
type ActionData struct {
	Name string
}

func WithActionData(ctx context.Context, data *ActionData) context.Context {
	return context.WithValue(ctx, actionDataKey{}, data)
}
