package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	syncx "github.com/juanlms/quizcore/internal/sync"
)

// EventFeed reads the outbox forward from a sequence number.
type EventFeed interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// GET /notifications?after=&limit=
//
// Returns violation reports oldest first. Clients pass the last seq they
// processed as after.
func NotificationsHandler(feed EventFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		events, err := feed.Since(r.Context(), after, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := make([]map[string]any, 0, len(events))
		for _, e := range events {
			out = append(out, map[string]any{
				"seq":       e.Seq,
				"type":      e.Type,
				"key":       e.Key,
				"data":      json.RawMessage(e.DataJSON),
				"createdAt": time.Unix(e.CreatedAt, 0).UTC(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
