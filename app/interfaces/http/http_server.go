package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/maplane/tile-gateway/app/domain/healthcheck"
	"github.com/maplane/tile-gateway/app/interfaces/http/middleware"
	v1 "github.com/maplane/tile-gateway/app/interfaces/http/routes/v1"
	"github.com/maplane/tile-gateway/app/utils/logger"
)

type HttpServer struct {
	engine  *gin.Engine
	v1Route *v1.V1Route
}

func NewHttpServer(v1Route *v1.V1Route, healthService *healthcheck.HealthcheckCrontabService) *HttpServer {
	gin.SetMode(gin.ReleaseMode)
	server := HttpServer{
		engine:  gin.New(),
		v1Route: v1Route,
	}
	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.LoggerMiddleware(logger.GetLogger()))
	server.engine.Use(middleware.CORS())
	server.engine.GET("/health", func(c *gin.Context) {
		status := healthService.Status()
		code := 200
		if !status.Redis {
			code = 503
		}
		c.JSON(code, status)
	})
	return &server
}

func (httpServer *HttpServer) Run() error {
	port := 8080
	httpServer.v1Route.RegisterRouter(httpServer.engine.Group("/"))
	if err := httpServer.engine.Run(fmt.Sprintf(":%d", port)); err != nil {
		return err
	}
	return nil
}
