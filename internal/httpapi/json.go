package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON mirrors the teacher's common.WriteJSON helper.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
