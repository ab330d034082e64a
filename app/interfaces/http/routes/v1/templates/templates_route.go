package templates

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maplane/tile-gateway/app/domain/authorization"
	"github.com/maplane/tile-gateway/app/domain/cachechannel"
	"github.com/maplane/tile-gateway/app/domain/template"
	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/interfaces/http/responses"
	"github.com/maplane/tile-gateway/app/utils/logger"
)

// TemplateAPI exposes CRUD over an owner's map templates plus template
// instantiation. The owner is always resolved from the request host;
// mutating operations additionally require the owner's API key.
type TemplateAPI struct {
	store       *template.Store
	mapStore    *mapstore.MapStore
	authService *authorization.Service
	channels    *cachechannel.Generator
}

func NewTemplateAPI(store *template.Store, mapStore *mapstore.MapStore, authService *authorization.Service, channels *cachechannel.Generator) *TemplateAPI {
	return &TemplateAPI{
		store:       store,
		mapStore:    mapStore,
		authService: authService,
		channels:    channels,
	}
}

func (api *TemplateAPI) RegisterRouter(router *gin.RouterGroup) {
	templateRouter := router.Group("template")
	templateRouter.POST("", api.Create)
	templateRouter.GET("", api.List)
	templateRouter.GET("/:template_id", api.Get)
	templateRouter.PUT("/:template_id", api.Update)
	templateRouter.DELETE("/:template_id", api.Delete)
	templateRouter.POST("/:template_id", api.Instantiate)
}

// requireOwner resolves the request parameters and enforces API-key
// authentication. On failure the response has already been written.
func (api *TemplateAPI) requireOwner(reqCtx *gin.Context, denied string) (*authorization.RequestParams, bool) {
	params, ok := api.resolveParams(reqCtx)
	if !ok {
		return nil, false
	}
	authorized, err := api.authService.Authorize(reqCtx.Request.Context(), params)
	if err != nil {
		abortWithError(reqCtx, err)
		return nil, false
	}
	if !authorized || !params.AuthorizedByAPIKey {
		reqCtx.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{Error: denied})
		return nil, false
	}
	return params, true
}

func (api *TemplateAPI) resolveParams(reqCtx *gin.Context) (*authorization.RequestParams, bool) {
	params, err := authorization.NewRequestParams(reqCtx)
	if err != nil {
		abortWithError(reqCtx, err)
		return nil, false
	}
	return params, true
}

// templateName validates the template_id path parameter against the
// resolved owner and strips the owner prefix when present.
func templateName(reqCtx *gin.Context, owner string) (string, bool) {
	id := reqCtx.Param("template_id")
	idOwner, name := template.SplitID(id)
	if idOwner != "" && idOwner != owner {
		reqCtx.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{
			Error: "Invalid template id '" + id + "' for user '" + owner + "'",
		})
		return "", false
	}
	return name, true
}

func abortWithError(reqCtx *gin.Context, err error) {
	var (
		forbiddenErr  *authorization.ForbiddenError
		validationErr *template.ValidationError
		conflictErr   *template.ConflictError
		quotaErr      *template.QuotaError
	)
	switch {
	case errors.As(err, &forbiddenErr):
		reqCtx.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{Error: err.Error()})
	case errors.As(err, &validationErr):
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{Error: err.Error()})
	case errors.As(err, &conflictErr), errors.As(err, &quotaErr):
		reqCtx.AbortWithStatusJSON(http.StatusConflict, responses.ErrorResponse{Error: err.Error()})
	case errors.Is(err, mapstore.ErrNotFound):
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{Error: err.Error()})
	default:
		logger.GetLogger().Errorf("template api error: %v", err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{Error: err.Error()})
	}
}

func (api *TemplateAPI) Create(reqCtx *gin.Context) {
	params, ok := api.requireOwner(reqCtx, "Only authenticated user can create templated maps")
	if !ok {
		return
	}
	var tpl template.Template
	if err := reqCtx.ShouldBindJSON(&tpl); err != nil {
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{Error: "Malformed template body: " + err.Error()})
		return
	}
	name, err := api.store.Add(reqCtx.Request.Context(), params.User, &tpl)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.TemplateIDResponse{TemplateID: template.ID(params.User, name)})
}

func (api *TemplateAPI) List(reqCtx *gin.Context) {
	params, ok := api.requireOwner(reqCtx, "Only authenticated user can list templated maps")
	if !ok {
		return
	}
	names, err := api.store.List(reqCtx.Request.Context(), params.User)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, template.ID(params.User, name))
	}
	reqCtx.JSON(http.StatusOK, responses.TemplateListResponse{TemplateIDs: ids})
}

func (api *TemplateAPI) Get(reqCtx *gin.Context) {
	params, ok := api.requireOwner(reqCtx, "Only authenticated users can get template maps")
	if !ok {
		return
	}
	name, ok := templateName(reqCtx, params.User)
	if !ok {
		return
	}
	tpl, err := api.store.Get(reqCtx.Request.Context(), params.User, name)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}
	if tpl == nil {
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{
			Error: "Cannot find template '" + name + "' of user '" + params.User + "'",
		})
		return
	}
	reqCtx.JSON(http.StatusOK, tpl)
}

func (api *TemplateAPI) Update(reqCtx *gin.Context) {
	params, ok := api.requireOwner(reqCtx, "Only authenticated user can update templated maps")
	if !ok {
		return
	}
	name, ok := templateName(reqCtx, params.User)
	if !ok {
		return
	}
	var tpl template.Template
	if err := reqCtx.ShouldBindJSON(&tpl); err != nil {
		reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{Error: "Malformed template body: " + err.Error()})
		return
	}
	if _, err := api.store.Update(reqCtx.Request.Context(), params.User, name, &tpl); err != nil {
		abortWithError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, responses.TemplateIDResponse{TemplateID: template.ID(params.User, name)})
}

func (api *TemplateAPI) Delete(reqCtx *gin.Context) {
	params, ok := api.requireOwner(reqCtx, "Only authenticated users can delete templated maps")
	if !ok {
		return
	}
	name, ok := templateName(reqCtx, params.User)
	if !ok {
		return
	}
	if err := api.store.Delete(reqCtx.Request.Context(), params.User, name); err != nil {
		abortWithError(reqCtx, err)
		return
	}
	reqCtx.Status(http.StatusNoContent)
}

// Instantiate renders a stored template into a concrete rendering
// configuration and persists it under a token. Access is governed by the
// template's own auth policy, not by the owner's API key.
func (api *TemplateAPI) Instantiate(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()
	params, ok := api.resolveParams(reqCtx)
	if !ok {
		return
	}
	name, ok := templateName(reqCtx, params.User)
	if !ok {
		return
	}

	tpl, err := api.store.Get(ctx, params.User, name)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}
	if tpl == nil {
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{
			Error: "Cannot find template '" + name + "' of user '" + params.User + "'",
		})
		return
	}
	if !api.store.IsAuthorized(tpl, params.AuthToken) {
		reqCtx.AbortWithStatusJSON(http.StatusForbidden, responses.ErrorResponse{Error: "Unauthorized template instantiation"})
		return
	}

	templateParams := map[string]any{}
	if reqCtx.Request.ContentLength > 0 {
		if err := reqCtx.ShouldBindJSON(&templateParams); err != nil {
			reqCtx.AbortWithStatusJSON(http.StatusBadRequest, responses.ErrorResponse{Error: "Malformed instantiation params: " + err.Error()})
			return
		}
	}

	config, err := template.Instance(tpl, templateParams)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}

	if err := api.authService.SetDBConn(ctx, params.User, params); err != nil {
		abortWithError(reqCtx, err)
		return
	}

	token, err := api.mapStore.Save(ctx, config)
	if err != nil {
		abortWithError(reqCtx, err)
		return
	}

	statTag, _ := config["stat_tag"].(string)
	response := &cachechannel.InstanceResponse{LayerGroupID: token}
	if err := api.channels.AfterInstanceCreate(reqCtx, params, statTag, mapstore.NewConfig(config), response); err != nil {
		abortWithError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, response)
}
