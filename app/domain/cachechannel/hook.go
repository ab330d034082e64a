package cachechannel

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"

	"github.com/maplane/tile-gateway/app/domain/authorization"
	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/utils/logger"
)

// InstanceResponse is the body returned for a newly created renderable
// instance. AfterInstanceCreate augments the identifier with a
// last-modification cache buster.
type InstanceResponse struct {
	LayerGroupID string `json:"layergroupid"`
	LastUpdated  string `json:"last_updated,omitempty"`
}

// AfterInstanceCreate runs the two post-creation effects concurrently:
// incrementing the owner's usage counter (failure logged, never surfaced)
// and resolving the affected tables plus their last modification time. On
// success the channel is memoized under the instance token, cache headers
// are set, and the instance identifier gains a ":<lastUpdated>" suffix.
// Both effects complete before this returns; collected failures come back
// as one aggregated error.
func (g *Generator) AfterInstanceCreate(c *gin.Context, params *authorization.RequestParams, statTag string, config *mapstore.MapConfig, response *InstanceResponse) error {
	ctx := c.Request.Context()
	token := response.LayerGroupID

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)
	collect := func(err error) {
		mu.Lock()
		failures = append(failures, err.Error())
		mu.Unlock()
	}

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := g.metadata.IncMapviewCount(ctx, params.User, statTag); err != nil {
			logger.GetLogger().Warnf("ERROR: failed to increment mapview count for user '%s': %v", params.User, err)
		}
	}()

	go func() {
		defer wg.Done()
		sql := strings.Join(config.LayerSQL(), ";")
		user, db, err := g.queryCredentials(ctx, params)
		if err != nil {
			collect(err)
			return
		}
		result, err := g.sqlAPI.GetAffectedTablesAndLastUpdatedTime(ctx, user, db, sql)
		if err != nil {
			collect(err)
			return
		}

		channel := BuildCacheChannel(params.DBName, result.AffectedTables)
		g.memo.Set(params.DBName+":"+token, channel, ttlcache.NoTTL)

		if c.Request.Method == http.MethodGet {
			if params.CachePolicy == "persist" {
				c.Header("Cache-Control", "public,max-age=31536000") // 1 year
			} else {
				c.Header("Cache-Control", fmt.Sprintf("public,max-age=%d,must-revalidate", g.ttl))
			}
			c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			c.Header("X-Cache-Channel", channel)
		}

		// last update becomes the instance's cache buster
		response.LayerGroupID = token + ":" + strconv.FormatInt(result.LastUpdatedTime, 10)
		response.LastUpdated = time.UnixMilli(result.LastUpdatedTime).UTC().Format(time.RFC3339)
	}()

	wg.Wait()

	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "\n"))
	}
	return nil
}
