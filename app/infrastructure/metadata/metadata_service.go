package metadata

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/maplane/tile-gateway/app/infrastructure/cache"
)

// Service resolves per-user platform metadata kept alongside the template
// collections: the stored map API key, database identity and connection
// parameters, per-table privacy flags and usage counters.
//
// Layout: one hash per user at "map_usr|{user}" (fields id, map_key,
// database_name, database_password, database_host, database_port), one hash
// per table at "map_tbl|{dbname}|{table}" (field privacy), plain counters
// under "map_stat|{user}|...".
type Service struct {
	kv cache.CacheService
}

func NewService(kv cache.CacheService) *Service {
	return &Service{kv: kv}
}

func userKey(user string) string {
	return "map_usr|" + user
}

func tableKey(dbName, table string) string {
	return "map_tbl|" + dbName + "|" + table
}

func (s *Service) userField(ctx context.Context, user, field string) (string, error) {
	val, err := s.kv.HGet(ctx, userKey(user), field)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve %s for user '%s': %w", field, user, err)
	}
	return val, nil
}

// GetUserMapKey returns the user's stored map API key, empty if none.
func (s *Service) GetUserMapKey(ctx context.Context, user string) (string, error) {
	return s.userField(ctx, user, "map_key")
}

// GetUserID returns the user's numeric platform id as stored.
func (s *Service) GetUserID(ctx context.Context, user string) (string, error) {
	return s.userField(ctx, user, "id")
}

// GetUserDBName returns the name of the user's backing database.
func (s *Service) GetUserDBName(ctx context.Context, user string) (string, error) {
	return s.userField(ctx, user, "database_name")
}

// GetUserDBPass returns the user's database password.
func (s *Service) GetUserDBPass(ctx context.Context, user string) (string, error) {
	return s.userField(ctx, user, "database_password")
}

// DBConnectionParams holds the per-user database connection overrides.
// Empty fields mean "no override".
type DBConnectionParams struct {
	DBName string
	DBUser string
	DBHost string
	DBPort string
}

// GetUserDBConnectionParams returns the connection parameters stored for
// the owner of a database.
func (s *Service) GetUserDBConnectionParams(ctx context.Context, user string) (DBConnectionParams, error) {
	var params DBConnectionParams
	var err error
	if params.DBName, err = s.userField(ctx, user, "database_name"); err != nil {
		return params, err
	}
	if params.DBUser, err = s.userField(ctx, user, "database_user"); err != nil {
		return params, err
	}
	if params.DBHost, err = s.userField(ctx, user, "database_host"); err != nil {
		return params, err
	}
	if params.DBPort, err = s.userField(ctx, user, "database_port"); err != nil {
		return params, err
	}
	return params, nil
}

// GetTablePrivacy returns the privacy flag of a table; non-zero means the
// table is private. Tables without a stored flag are treated as public.
func (s *Service) GetTablePrivacy(ctx context.Context, dbName, table string) (int, error) {
	val, err := s.kv.HGet(ctx, tableKey(dbName, table), "privacy")
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to resolve privacy of table '%s' in '%s': %w", table, dbName, err)
	}
	if val == "" {
		return 0, nil
	}
	flag, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("malformed privacy flag for table '%s' in '%s': %q", table, dbName, val)
	}
	return flag, nil
}

// IncMapviewCount increments the usage counters for a user, globally and,
// when a stat tag is given, per tag.
func (s *Service) IncMapviewCount(ctx context.Context, user, statTag string) error {
	if _, err := s.kv.Incr(ctx, "map_stat|"+user+"|global"); err != nil {
		return fmt.Errorf("failed to increment mapview count for user '%s': %w", user, err)
	}
	if statTag != "" {
		if _, err := s.kv.Incr(ctx, "map_stat|"+user+"|tag|"+statTag); err != nil {
			return fmt.Errorf("failed to increment mapview count for user '%s': %w", user, err)
		}
	}
	return nil
}
