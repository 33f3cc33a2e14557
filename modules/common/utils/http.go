package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// WriteJSON - encode a JSON response with status
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("❌ Failed to encode JSON response: %v", err)
	}
}

// WriteError - JSON error body, never a raw internal structure
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
