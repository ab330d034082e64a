package environment_variables

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

type EnvironmentVariable struct {
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string

	// Pattern extracting the owner name from the request Host header.
	// Must contain one capture group.
	USER_FROM_HOST string

	// Per-owner limit on stored templates. Empty or "0" disables the quota.
	MAX_USER_TEMPLATES string

	// Optional per-template mutation locks. The reference behavior relies on
	// the store's atomic primitives only; locks are an opt-in strengthening.
	TEMPLATE_LOCKS_ENABLED string
	LOCK_TTL_MS            string

	VARNISH_PURGE_ENABLED string
	VARNISH_URL           string
	VARNISH_TTL           string

	MAPCONFIG_TTL string

	SQLAPI_PROTOCOL string
	SQLAPI_DOMAIN   string
	SQLAPI_PORT     string

	POSTGRES_USER     string
	POSTGRES_PASSWORD string
	POSTGRES_HOST     string
	POSTGRES_PORT     string

	// Templates used to derive per-user database credentials,
	// e.g. "tiler_user_<%= user_id %>".
	POSTGRES_AUTH_USER string
	POSTGRES_AUTH_PASS string

	ALLOWED_CORS_HOSTS []string
}

func (ev *EnvironmentVariable) LoadFromEnv() {
	v := reflect.ValueOf(ev).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		envKey := field.Name
		envValue := os.Getenv(envKey)
		if envValue == "" {
			fmt.Printf("Missing SYSENV: %s\n", envKey)
			continue
		}
		switch v.Field(i).Kind() {
		case reflect.String:
			v.Field(i).SetString(envValue)
		case reflect.Slice:
			parts := strings.Split(envValue, ",")
			for j := range parts {
				parts[j] = strings.TrimSpace(parts[j])
			}
			v.Field(i).Set(reflect.ValueOf(parts))
		}
	}
}

// Singleton
var EnvironmentVariables = EnvironmentVariable{}
