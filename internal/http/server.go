// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripalbum/internal/http/handlers"
	"tripalbum/internal/http/middleware"
)

type ServerDeps struct {
	Trips           handlers.TripService
	Albums          handlers.AlbumBuilder
	Recommendations handlers.Analyzer
	Log             *zap.Logger
}

type Server struct {
	trips           handlers.TripService
	albums          handlers.AlbumBuilder
	recommendations handlers.Analyzer
	log             *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		trips:           deps.Trips,
		albums:          deps.Albums,
		recommendations: deps.Recommendations,
		log:             deps.Log,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.UserID(), middleware.Logging(s.log))

	recommendationHandler := handlers.NewRecommendationHandler(s.recommendations)
	r.POST("/recommendations/analyze", recommendationHandler.Analyze)

	tripHandler := handlers.NewTripHandler(s.trips, s.albums, s.log)
	api := r.Group("/api")
	api.GET("/trips", tripHandler.List)
	api.DELETE("/trips/cache", tripHandler.InvalidateCache)
	api.POST("/trips/:id/dismiss", tripHandler.Dismiss)
	api.POST("/trips/:id/album", tripHandler.CreateAlbum)

	homeHandler := handlers.NewHomeHandler(s.trips)
	api.GET("/home", homeHandler.Get)
	api.PUT("/home", homeHandler.Set)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
