// internal/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires every HTTP and websocket endpoint of the lobby server.
func NewRouter(logger *logrus.Logger, svc *lobby.Services) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   svc.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.LogMiddleware(logger))

	// user endpoints
	r.Post("/user/create", CreateUserHandler(logger))
	r.Post("/user/login", LoginHandler(logger))

	// social endpoints
	r.Post("/social/add", AddSocialHandler)
	r.Get("/social/list", ListSocialHandler)
	r.Post("/social/remove", RemoveSocialHandler)

	r.Get("/games", ListGamesHandler(svc.Players, svc.Games))

	// lobby ws
	r.Get("/lobby/ws", LobbyWSHandler(logger, svc))

	return r
}
