// internal/handlers/friend.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// authenticatedPlayer resolves the caller's player id, writing the HTTP error itself when
// it fails.
func authenticatedPlayer(w http.ResponseWriter, r *http.Request) (int, bool) {
	token := requestToken(r)
	if token == "" {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return 0, false
	}
	id, ok := authenticatedPlayerID(token)
	if !ok {
		http.Error(w, "invalid token", http.StatusForbidden)
		return 0, false
	}
	return id, true
}

func authenticatedPlayerID(token string) (int, bool) {
	claims, err := auth.AuthenticateJWT(token)
	if err != nil {
		return 0, false
	}
	return claims.PlayerID, true
}

type socialRequest struct {
	SubjectID int    `json:"subject_id"`
	Status    string `json:"status"`
}

// AddSocialHandler marks another player as a friend or foe.
//
// Request payload: { "subject_id": 42, "status": "FRIEND" }
func AddSocialHandler(w http.ResponseWriter, r *http.Request) {
	playerID, ok := authenticatedPlayer(w, r)
	if !ok {
		return
	}

	var req socialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Status != models.RelationFriend && req.Status != models.RelationFoe {
		http.Error(w, "status must be FRIEND or FOE", http.StatusBadRequest)
		return
	}
	if req.SubjectID == playerID {
		http.Error(w, "cannot befriend or foe yourself", http.StatusBadRequest)
		return
	}

	if err := database.UpsertSocial(r.Context(), playerID, req.SubjectID, req.Status); err != nil {
		http.Error(w, fmt.Sprintf("failed to store relation: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte("relation stored"))
}

// ListSocialHandler returns the caller's friend and foe entries.
func ListSocialHandler(w http.ResponseWriter, r *http.Request) {
	playerID, ok := authenticatedPlayer(w, r)
	if !ok {
		return
	}

	rel, err := database.ListSocial(r.Context(), playerID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list relations: %v", err), http.StatusInternalServerError)
		return
	}
	if rel == nil {
		rel = []models.SocialRelation{}
	}
	writeJSON(w, http.StatusOK, rel)
}

// RemoveSocialHandler deletes the caller's relation to another player.
//
// Request payload: { "subject_id": 42 }
func RemoveSocialHandler(w http.ResponseWriter, r *http.Request) {
	playerID, ok := authenticatedPlayer(w, r)
	if !ok {
		return
	}

	var req socialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := database.DeleteSocial(r.Context(), playerID, req.SubjectID); err != nil {
		http.Error(w, fmt.Sprintf("failed to remove relation: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("relation removed"))
}
