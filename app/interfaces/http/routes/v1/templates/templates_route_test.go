package templates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maplane/tile-gateway/app/domain/authorization"
	"github.com/maplane/tile-gateway/app/domain/cachechannel"
	"github.com/maplane/tile-gateway/app/domain/template"
	"github.com/maplane/tile-gateway/app/infrastructure/cache"
	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/infrastructure/metadata"
	"github.com/maplane/tile-gateway/app/infrastructure/sqlapi"
)

type stubSQLAPI struct{}

func (stubSQLAPI) GetAffectedTablesInQuery(ctx context.Context, username string, db sqlapi.DBParams, sql string) ([]string, error) {
	return []string{"t1"}, nil
}

func (stubSQLAPI) GetAffectedTablesAndLastUpdatedTime(ctx context.Context, username string, db sqlapi.DBParams, sql string) (*sqlapi.AffectedTablesResult, error) {
	return &sqlapi.AffectedTablesResult{AffectedTables: []string{"t1"}, LastUpdatedTime: 1234567890123}, nil
}

type apiFixture struct {
	engine *gin.Engine
	store  *template.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := cache.NewMemoryCacheService()
	ctx := context.Background()
	for field, value := range map[string]string{
		"id":            "17",
		"map_key":       "1234",
		"database_name": "localhost_db",
	} {
		_, err := kv.HSet(ctx, "map_usr|localhost", field, value)
		require.NoError(t, err)
	}

	store := template.NewStore(kv, template.StoreOptions{})
	mapStore := mapstore.New(kv, 0)
	metadataService := metadata.NewService(kv)
	authService := authorization.NewService(metadataService, mapStore)
	channels := cachechannel.NewGenerator(mapStore, stubSQLAPI{}, metadataService)

	engine := gin.New()
	NewTemplateAPI(store, mapStore, authService, channels).RegisterRouter(engine.Group("tiles"))
	return &apiFixture{engine: engine, store: store}
}

func (fx *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Host = "localhost.lan"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.engine.ServeHTTP(rec, req)
	return rec
}

const acceptanceTemplate = `{
	"version": "0.0.1",
	"name": "acceptance",
	"auth": {"method": "open"},
	"placeholders": {
		"color": {"type": "css_color", "default": "red"}
	},
	"layergroup": {
		"version": "1.0.1",
		"stat_tag": "wadus",
		"layers": [{
			"options": {
				"sql": "select * from t1",
				"cartocss": "#t1 { marker-fill: <%= color %>; }"
			}
		}]
	}
}`

func TestCreateTemplate(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "localhost@acceptance", body["template_id"])
}

func TestCreateRequiresAPIKey(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do("POST", "/tiles/template", acceptanceTemplate)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do("POST", "/tiles/template?api_key=wrong", acceptanceTemplate)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateInvalidTemplate(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do("POST", "/tiles/template?api_key=1234", `{"version":"0.0.1","name":"bad name","layergroup":{"layers":[{"options":{}}]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid characters in template name 'bad name'")
}

func TestCreateDuplicateConflicts(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)
	assert.Equal(t, http.StatusConflict, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)
}

func TestListTemplates(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	rec := fx.do("GET", "/tiles/template?api_key=1234", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"localhost@acceptance"}, body["template_ids"])
}

func TestGetTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	rec := fx.do("GET", "/tiles/template/localhost@acceptance?api_key=1234", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tpl template.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpl))
	assert.Equal(t, "acceptance", tpl.Name)
	assert.Equal(t, template.AuthMethodOpen, tpl.Auth.Method)

	rec = fx.do("GET", "/tiles/template/localhost@missing?api_key=1234", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTemplateForeignOwner(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do("GET", "/tiles/template/mallory@acceptance?api_key=1234", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	updated := strings.Replace(acceptanceTemplate, `{"method": "open"}`, `{"method": "token", "valid_tokens": ["s3cret"]}`, 1)
	rec := fx.do("PUT", "/tiles/template/localhost@acceptance?api_key=1234", updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tpl, err := fx.store.Get(context.Background(), "localhost", "acceptance")
	require.NoError(t, err)
	assert.Equal(t, template.AuthMethodToken, tpl.Auth.Method)
}

func TestUpdateRejectsRename(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	renamed := strings.Replace(acceptanceTemplate, `"name": "acceptance"`, `"name": "renamed"`, 1)
	rec := fx.do("PUT", "/tiles/template/localhost@acceptance?api_key=1234", renamed)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	rec := fx.do("DELETE", "/tiles/template/localhost@acceptance?api_key=1234", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = fx.do("DELETE", "/tiles/template/localhost@acceptance?api_key=1234", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInstantiateOpenTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	rec := fx.do("POST", "/tiles/template/localhost@acceptance", `{"color": "blue"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["layergroupid"])
	assert.True(t, strings.HasSuffix(body["layergroupid"], ":1234567890123"))
	assert.Equal(t, "2009-02-13T23:31:30Z", body["last_updated"])
}

func TestInstantiateGatedTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	gated := strings.Replace(acceptanceTemplate, `{"method": "open"}`, `{"method": "token", "valid_tokens": ["s3cret"]}`, 1)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", gated).Code)

	rec := fx.do("POST", "/tiles/template/localhost@acceptance", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do("POST", "/tiles/template/localhost@acceptance?auth_token=wrong", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = fx.do("POST", "/tiles/template/localhost@acceptance?auth_token=s3cret", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestInstantiateMissingTemplate(t *testing.T) {
	fx := newAPIFixture(t)
	rec := fx.do("POST", "/tiles/template/localhost@nothere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cannot find template 'nothere' of user 'localhost'")
}

func TestInstantiateRejectsInvalidParam(t *testing.T) {
	fx := newAPIFixture(t)
	require.Equal(t, http.StatusOK, fx.do("POST", "/tiles/template?api_key=1234", acceptanceTemplate).Code)

	rec := fx.do("POST", "/tiles/template/localhost@acceptance", `{"color": "##ff00ff"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid css_color value for template parameter 'color'")
}
