package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"thermavip/protocol"
)

// BroadcastHandler passes every record to an inner handler and forwards the
// ones at or above minLevel to the WebSocket clients as log_notification
// messages.
type BroadcastHandler struct {
	inner     slog.Handler
	transport WebSocketTransport
	minLevel  slog.Level
	// attrs added through WithAttrs, keys already qualified by their group
	attrs  map[string]interface{}
	groups []string
}

func NewBroadcastHandler(inner slog.Handler, transport WebSocketTransport, minLevel slog.Level) *BroadcastHandler {
	return &BroadcastHandler{
		inner:     inner,
		transport: transport,
		minLevel:  minLevel,
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.minLevel && h.transport != nil {
		h.broadcast(r)
	}
	return nil
}

func (h *BroadcastHandler) clone() *BroadcastHandler {
	c := *h
	c.attrs = make(map[string]interface{}, len(h.attrs))
	for k, v := range h.attrs {
		c.attrs[k] = v
	}
	c.groups = slices.Clone(h.groups)
	return &c
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		addAttr(c.attrs, c.groups, a)
	}
	return c
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.inner = h.inner.WithGroup(name)
	c.groups = append(c.groups, name)
	return c
}

// addAttr stores a under its dotted group path. Group values are flattened.
func addAttr(dst map[string]interface{}, groups []string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			groups = append(slices.Clone(groups), a.Key)
		}
		for _, ga := range v.Group() {
			addAttr(dst, groups, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	dst[key] = attrValue(v)
}

// attrValue converts v to a JSON friendly value
func attrValue(v slog.Value) interface{} {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	}

	switch x := v.Any().(type) {
	case nil:
		return nil
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	if s := v.String(); s != "" && s != "{}" {
		return s
	}
	return fmt.Sprintf("%+v", v.Any())
}

func (h *BroadcastHandler) broadcast(r slog.Record) {
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, h.groups, a)
		return true
	})

	data, err := protocol.CreateMessage(protocol.MessageTypeLogNotification, protocol.LogNotificationPayload{
		Level:      r.Level.String(),
		Message:    r.Message,
		Time:       r.Time,
		Attributes: attrs,
	}, "")
	if err != nil {
		// logging the failure would recurse into this handler
		return
	}
	_ = h.transport.BroadcastMessage(data)
}
