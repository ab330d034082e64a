package cachechannel

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"

	"github.com/maplane/tile-gateway/app/domain/authorization"
	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/infrastructure/metadata"
	"github.com/maplane/tile-gateway/app/infrastructure/sqlapi"
	"github.com/maplane/tile-gateway/app/utils/logger"
	"github.com/maplane/tile-gateway/config/environment_variables"
)

// ErrNoChannelNeeded signals that a request has nothing to invalidate: no
// SQL, no token and no table. Callers must treat it as "nothing to add",
// not as a failure.
var ErrNoChannelNeeded = errors.New("this request doesn't need a cache channel generated")

// DefaultTTL bounds the front-cache lifetime of non-persistent responses.
const DefaultTTL = 86400

// AffectedTablesClient analyzes which tables a SQL statement reads.
type AffectedTablesClient interface {
	GetAffectedTablesInQuery(ctx context.Context, username string, db sqlapi.DBParams, sql string) ([]string, error)
	GetAffectedTablesAndLastUpdatedTime(ctx context.Context, username string, db sqlapi.DBParams, sql string) (*sqlapi.AffectedTablesResult, error)
}

// TokenResolver loads the rendering configuration behind an instance token.
type TokenResolver interface {
	Load(ctx context.Context, token string) (*mapstore.MapConfig, error)
}

// Generator computes, for a request, the set of backing tables the response
// depends on and renders it as a cache channel ("dbname:table1,table2,...")
// used to drive front-cache invalidation.
//
// Resolved channels are memoized in a process-local map shared across all
// requests. Entries are never evicted: by-token channels can only be
// rebuilt while the SQL is still known, so dropping them would lose the
// association. Colliding concurrent computations converge to the same
// value, so last-writer-wins is acceptable.
type Generator struct {
	memo     *ttlcache.Cache[string, string]
	mapStore TokenResolver
	sqlAPI   AffectedTablesClient
	metadata *metadata.Service
	ttl      int
}

func NewGenerator(mapStore TokenResolver, sqlAPI AffectedTablesClient, metadataService *metadata.Service) *Generator {
	ttl := DefaultTTL
	if raw := environment_variables.EnvironmentVariables.VARNISH_TTL; raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			ttl = parsed
		}
	}
	return &Generator{
		memo:     ttlcache.New[string, string](),
		mapStore: mapStore,
		sqlAPI:   sqlAPI,
		metadata: metadataService,
		ttl:      ttl,
	}
}

// BuildCacheChannel renders the channel string for a database and its
// affected tables.
func BuildCacheChannel(dbName string, tableNames []string) string {
	return dbName + ":" + strings.Join(tableNames, ",")
}

func md5Hex(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func (g *Generator) memoKey(params *authorization.RequestParams) string {
	key := []string{params.DBName}
	if params.Token != "" {
		key = append(key, params.Token)
	} else if params.SQL != "" {
		key = append(key, md5Hex(params.SQL))
	}
	return strings.Join(key, ":")
}

// wrapper inserted around driving queries by the rendering engine
var reWrappedSQL = regexp.MustCompile(`^\((.*)\)\sas\scdbq$`)

func (g *Generator) resolveSQL(ctx context.Context, params *authorization.RequestParams) (string, error) {
	if params.Token != "" {
		config, err := g.mapStore.Load(ctx, params.Token)
		if err != nil {
			return "", err
		}
		return strings.Join(config.LayerSQL(), ";"), nil
	}
	if params.SQL == "" {
		return "", nil
	}
	if match := reWrappedSQL.FindStringSubmatch(params.SQL); match != nil {
		return match[1], nil
	}
	return params.SQL, nil
}

// queryCredentials picks the identity the affected-tables query runs as:
// the validated signer's stored key when the request was authorized by a
// signer, the caller's own key otherwise.
func (g *Generator) queryCredentials(ctx context.Context, params *authorization.RequestParams) (string, sqlapi.DBParams, error) {
	db := sqlapi.DBParams{
		User:   params.DBUser,
		Pass:   params.DBPassword,
		Host:   params.DBHost,
		Port:   params.DBPort,
		DBName: params.DBName,
	}
	if params.AuthorizedBySigner != "" {
		key, err := g.metadata.GetUserMapKey(ctx, params.AuthorizedBySigner)
		if err != nil {
			return "", db, err
		}
		db.APIKey = key
		return params.AuthorizedBySigner, db, nil
	}
	db.APIKey = params.APIKey
	return params.User, db, nil
}

// Generate computes the cache channel for a request. Memoized results are
// returned immediately; table-only channels are trivial and not worth
// memoizing.
func (g *Generator) Generate(ctx context.Context, params *authorization.RequestParams) (string, error) {
	key := g.memoKey(params)
	if item := g.memo.Get(key); item != nil {
		return item.Value(), nil
	}

	sql, err := g.resolveSQL(ctx, params)
	if err != nil {
		return "", err
	}

	var tableNames []string
	if sql == "" {
		if params.Table == "" {
			return "", ErrNoChannelNeeded
		}
		tableNames = []string{params.Table}
	} else {
		user, db, err := g.queryCredentials(ctx, params)
		if err != nil {
			return "", err
		}
		tableNames, err = g.sqlAPI.GetAffectedTablesInQuery(ctx, user, db, sql)
		if err != nil {
			return "", err
		}
	}

	channel := BuildCacheChannel(params.DBName, tableNames)
	if params.Table == "" {
		g.memo.Set(key, channel, ttlcache.NoTTL)
	}
	return channel, nil
}

// AddCacheChannel sets the caching headers of a cacheable GET response and
// populates X-Cache-Channel. A failed channel generation is logged and the
// header skipped; the response itself is unaffected.
func (g *Generator) AddCacheChannel(c *gin.Context, params *authorization.RequestParams) string {
	if c.Request.Method != http.MethodGet {
		return ""
	}

	cachePolicy := params.CachePolicy
	if params.Token != "" {
		cachePolicy = "persist"
	}
	if cachePolicy == "persist" {
		c.Header("Cache-Control", "public,max-age=31536000") // 1 year
	} else {
		c.Header("Cache-Control", fmt.Sprintf("no-cache,max-age=%d,must-revalidate, public", g.ttl))
	}

	lastUpdated := time.Now()
	if params.CacheBuster != "" {
		if ms, err := strconv.ParseInt(params.CacheBuster, 10, 64); err == nil {
			lastUpdated = time.UnixMilli(ms)
		}
	}
	c.Header("Last-Modified", lastUpdated.UTC().Format(http.TimeFormat))

	channel, err := g.Generate(c.Request.Context(), params)
	if err != nil {
		if !errors.Is(err, ErrNoChannelNeeded) {
			logger.GetLogger().Warnf("ERROR generating cache channel: %v", err)
		}
		return ""
	}
	c.Header("X-Cache-Channel", channel)
	return channel
}
