package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-interview/internal/bootstrap"
	"gopherai-interview/internal/transport/http/handler"
	"gopherai-interview/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Log), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	interviewHandler := handler.NewInterviewHandler(app.Interview, app.Log)

	v1 := router.Group("/api/v1")
	interviewGroup := v1.Group("/interview")
	interviewGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	handler.RegisterInterviewRoutes(interviewGroup, interviewHandler)

	return router
}
