package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/Jeeves/internal/models"
)

// fallbackErrorResponse is marshaled once so a failing encode still has a body to send.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("marshal fallback error response: %v", err))
	}
}

// writeJSONResponse encodes response before touching headers so an encoding
// failure can still become a 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		body = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", err)
	}
}
