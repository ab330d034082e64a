package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/maplane/tile-gateway/app/interfaces/http/routes/v1/templates"
)

type V1Route struct {
	templateAPI *templates.TemplateAPI
}

func NewV1Route(templateAPI *templates.TemplateAPI) *V1Route {
	return &V1Route{templateAPI: templateAPI}
}

func (v *V1Route) RegisterRouter(router *gin.RouterGroup) {
	tilesRouter := router.Group("tiles")
	v.templateAPI.RegisterRouter(tilesRouter)
}
