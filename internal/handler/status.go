package handler

import "net/http"

// StatusBanner answers GET / so uptime checks and curious clients see the
// API is up.
func StatusBanner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "TradeFlow chart analysis API",
		"status":  "running",
	})
}
