package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"holdem-casino/internal/config"
	"holdem-casino/internal/store"
)

func writeHTTPError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}

func healthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "db": "up"})
	}
}

func registerHandler(st *store.Store, cfg config.ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if body.Name == "" || body.Email == "" || len(body.Password) < 8 {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if _, err := st.GetUserByEmail(r.Context(), body.Email); err == nil {
			writeHTTPError(w, http.StatusConflict, "email_taken")
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		id, err := st.CreateUser(r.Context(), body.Name, body.Email, store.HashToken(body.Password), cfg.StartingBalanceCC)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		token, err := st.CreateSession(r.Context(), id, sessionTTL(cfg))
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":       id,
			"name":          body.Name,
			"session_token": token,
			"balance_cc":    cfg.StartingBalanceCC,
		})
	}
}

func loginHandler(st *store.Store, cfg config.ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		userID, hash, err := st.GetUserPasswordHash(r.Context(), body.Email)
		if errors.Is(err, store.ErrNotFound) || (err == nil && hash != store.HashToken(body.Password)) {
			writeHTTPError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		user, err := st.GetUser(r.Context(), userID)
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		token, err := st.CreateSession(r.Context(), userID, sessionTTL(cfg))
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":       user.ID,
			"name":          user.Name,
			"session_token": token,
			"balance_cc":    user.BalanceCC,
		})
	}
}

func logoutHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionToken string `json:"session_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.SessionToken == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := st.DeleteSession(r.Context(), body.SessionToken); err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func roomsHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := st.ListRooms(r.Context())
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			out = append(out, map[string]any{
				"id":             it.ID,
				"name":           it.Name,
				"small_blind_cc": it.SmallBlindCC,
				"big_blind_cc":   it.BigBlindCC,
				"min_buyin_cc":   it.MinBuyinCC,
				"max_buyin_cc":   it.MaxBuyinCC,
				"max_seats":      it.MaxSeats,
				"player_count":   it.PlayerCount,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": out})
	}
}

func sessionTTL(cfg config.ServerConfig) time.Duration {
	return time.Duration(cfg.SessionTTLHours) * time.Hour
}
