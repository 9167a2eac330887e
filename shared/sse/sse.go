// Package sse serves hub subscriptions as server-sent event streams.
package sse

import (
	"fmt"
	"log/slog"
	"net/http"

	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/httpx"
	"factory-digital-twin/shared/logx"
)

// Stream subscribes to the given hub channels and relays every delivery to
// the client as one "data: <json>\n\n" block. It blocks until the client
// disconnects; the subscription is released on return.
func Stream(w http.ResponseWriter, r *http.Request, hub *broadcast.Hub, logger logx.Logger, channels ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming unsupported", nil)
		return
	}

	sub := hub.Subscribe(channels...)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Nginx buffers responses unless told otherwise, which stalls the stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Info(r.Context(), "stream_opened", "event stream opened",
		slog.String("request_id", httpx.RequestIDFromContext(r.Context())),
		slog.Any("channels", channels),
		slog.String("client_ip", httpx.ClientIP(r)),
	)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "stream_closed", "event stream closed",
				slog.String("request_id", httpx.RequestIDFromContext(ctx)),
			)
			return
		case d, open := <-sub.C():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", d.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
