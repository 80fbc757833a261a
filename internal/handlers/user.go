package handlers

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/database"
	"github.com/jason-s-yu/lobbyd/internal/models"
	"github.com/sirupsen/logrus"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Login    string `json:"login"`
}

// CreateUserHandler registers a new account.
func CreateUserHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" || req.Login == "" {
			http.Error(w, "email, password and login are required", http.StatusBadRequest)
			return
		}

		acc := models.Account{Email: req.Email, Password: req.Password, Login: req.Login}
		if err := database.CreateAccount(r.Context(), &acc); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "login or email already exists", http.StatusConflict)
				return
			}
			logger.WithError(err).Error("failed to create account")
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}
		acc.Password = ""
		writeJSON(w, http.StatusCreated, acc)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Session int64  `json:"session"`
}

// newSessionID returns a random positive session number.
func newSessionID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}

// LoginHandler handles user login requests. It expects a JSON payload with email and password,
// and returns a JSON response with a session token to present in the lobby hello.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password"
//	}
//
// Response payload:
//
//	{
//	  "token": "{jwt}",
//	  "session": 1234
//	}
//
// The token is also sent via the Cookie header.
func LoginHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		session := newSessionID()
		token, err := database.AuthenticateAccount(context.WithoutCancel(r.Context()), req.Email, req.Password, session)
		if err != nil {
			logger.Infof("failed to authenticate user: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TOKEN_EXPIRE_TIME_SEC,
		})
		writeJSON(w, http.StatusOK, loginResponse{Token: token, Session: session})
	}
}
