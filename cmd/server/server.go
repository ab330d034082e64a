package main

import (
	"context"
	"strconv"
	"time"

	"github.com/mileusna/crontab"

	"github.com/maplane/tile-gateway/app/domain/authorization"
	"github.com/maplane/tile-gateway/app/domain/cachechannel"
	"github.com/maplane/tile-gateway/app/domain/healthcheck"
	"github.com/maplane/tile-gateway/app/domain/template"
	"github.com/maplane/tile-gateway/app/infrastructure/cache"
	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/infrastructure/metadata"
	"github.com/maplane/tile-gateway/app/infrastructure/sqlapi"
	"github.com/maplane/tile-gateway/app/infrastructure/varnish"
	"github.com/maplane/tile-gateway/app/interfaces/http"
	v1 "github.com/maplane/tile-gateway/app/interfaces/http/routes/v1"
	"github.com/maplane/tile-gateway/app/interfaces/http/routes/v1/templates"
	"github.com/maplane/tile-gateway/config/environment_variables"
)

type Application struct {
	HttpServer *http.HttpServer
}

func (application *Application) Start() {
	if err := application.HttpServer.Run(); err != nil {
		panic(err)
	}
}

func init() {
	environment_variables.EnvironmentVariables.LoadFromEnv()
}

func atoiOrZero(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func main() {
	env := environment_variables.EnvironmentVariables

	cacheService := cache.NewRedisCacheService()

	storeOpts := template.StoreOptions{
		MaxUserTemplates: atoiOrZero(env.MAX_USER_TEMPLATES),
	}
	if env.TEMPLATE_LOCKS_ENABLED == "true" {
		storeOpts.Locks = cacheService
		if ms := atoiOrZero(env.LOCK_TTL_MS); ms > 0 {
			storeOpts.LockTTL = time.Duration(ms) * time.Millisecond
		}
	}
	templateStore := template.NewStore(cacheService, storeOpts)

	metadataService := metadata.NewService(cacheService)
	mapStore := mapstore.New(cacheService, time.Duration(atoiOrZero(env.MAPCONFIG_TTL))*time.Second)
	sqlAPIClient := sqlapi.NewClient()
	authService := authorization.NewService(metadataService, mapStore)
	channelGenerator := cachechannel.NewGenerator(mapStore, sqlAPIClient, metadataService)

	if env.VARNISH_PURGE_ENABLED == "true" {
		surrogateKeys := varnish.NewSurrogateKeysCache(varnish.NewHTTPBackend())
		varnish.NewInvalidationDispatcher(surrogateKeys).Register(templateStore)
	}

	healthcheckService := healthcheck.NewService(cacheService)
	cron := crontab.New()
	crontabContext := context.Background()
	healthcheckService.Start(crontabContext, cron)

	templateAPI := templates.NewTemplateAPI(templateStore, mapStore, authService, channelGenerator)
	application := &Application{
		HttpServer: http.NewHttpServer(v1.NewV1Route(templateAPI), healthcheckService),
	}
	application.Start()
}
