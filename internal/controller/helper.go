package controller

import (
	"context"
	"encoding/json"
	"net/http"
)

type envelope map[string]any

func (c controller) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.WarnContext(ctx, "failed to write json", "error", err)
	}
}
