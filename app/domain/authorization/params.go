package authorization

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/maplane/tile-gateway/config/environment_variables"
)

// requestQueryParamsWhitelist are the only query parameters a request may
// carry into the resolution pipeline; everything else is discarded.
var requestQueryParamsWhitelist = []string{
	"sql",
	"cache_buster",
	"cache_policy",
	"map_key",
	"api_key",
	"auth_token",
}

// ForbiddenError marks an authorization failure that must surface as
// HTTP 403, as opposed to a failure to determine authorization.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// RequestParams is the resolved view of one request: who owns the targeted
// resource, what resource it is, which credentials were presented, and the
// database parameters assigned by the authorization ladder.
type RequestParams struct {
	User string

	Table       string
	DBName      string
	SQL         string
	Token       string
	Signer      string
	CacheBuster string
	CachePolicy string

	APIKey    string
	AuthToken string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string

	AuthorizedByAPIKey bool
	AuthorizedBySigner string
}

const defaultUserFromHost = `^([^\.]+)\.`

var (
	userFromHostMu      sync.Mutex
	userFromHostPattern string
	userFromHostRe      *regexp.Regexp
)

func reUserFromHost() *regexp.Regexp {
	pattern := environment_variables.EnvironmentVariables.USER_FROM_HOST
	if pattern == "" {
		pattern = defaultUserFromHost
	}
	userFromHostMu.Lock()
	defer userFromHostMu.Unlock()
	if pattern != userFromHostPattern {
		userFromHostRe = regexp.MustCompile(pattern)
		userFromHostPattern = pattern
	}
	return userFromHostRe
}

// UserFromHost extracts the owner name from a request host, e.g. "strk"
// from "strk.tiles.example.com".
func UserFromHost(host string) (string, error) {
	match := reUserFromHost().FindStringSubmatch(host)
	if len(match) < 2 {
		return "", fmt.Errorf("user pattern does not match hostname '%s'", host)
	}
	return match[1], nil
}

// NewRequestParams whitelists the request's query parameters and resolves
// the token form. Tokens come in the forms "token", "token:cache_buster"
// and "signer@[hash@]token[:cache_buster]"; a signer different from the
// resolved owner is forbidden.
func NewRequestParams(c *gin.Context) (*RequestParams, error) {
	user, err := UserFromHost(c.Request.Host)
	if err != nil {
		return nil, err
	}

	query := map[string]string{}
	for _, key := range requestQueryParamsWhitelist {
		if val, ok := c.GetQuery(key); ok {
			query[key] = val
		}
	}

	params := &RequestParams{
		User:        user,
		SQL:         query["sql"],
		CacheBuster: query["cache_buster"],
		CachePolicy: query["cache_policy"],
		AuthToken:   query["auth_token"],
	}
	params.APIKey = query["api_key"]
	if params.APIKey == "" {
		params.APIKey = query["map_key"]
	}

	if token := c.Param("token"); token != "" {
		if err := params.resolveToken(token); err != nil {
			return nil, err
		}
	}

	return params, nil
}

func (p *RequestParams) resolveToken(token string) error {
	if i := strings.IndexByte(token, ':'); i >= 0 {
		p.CacheBuster = token[i+1:]
		token = token[:i]
	}
	parts := strings.Split(token, "@")
	if len(parts) > 1 {
		signer := parts[0]
		if signer == "" {
			signer = p.User
		} else if signer != p.User {
			return &ForbiddenError{fmt.Sprintf(
				`Cannot use map signature of user "%s" on database of user "%s"`, signer, p.User)}
		}
		p.Signer = signer
		// middle part, when present, is the template hash; unused here
		token = parts[len(parts)-1]
	}
	p.Token = token
	return nil
}
