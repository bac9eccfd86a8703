package aep

import (
	"context"
	"log/slog"
)

// discardHandler is a slog.Handler that drops every record. Components
// default to a logger built on this rather than a nil *slog.Logger, so
// call sites never need a nil check before logging.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var discardLogger = slog.New(discardHandler{})
