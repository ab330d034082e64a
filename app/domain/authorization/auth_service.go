package authorization

import (
	"context"
	"strings"

	"github.com/maplane/tile-gateway/app/infrastructure/mapstore"
	"github.com/maplane/tile-gateway/app/infrastructure/metadata"
	"github.com/maplane/tile-gateway/config/environment_variables"
)

// TokenResolver loads the rendering configuration behind an instance token;
// the signer check reads the embedded template policy from it.
type TokenResolver interface {
	Load(ctx context.Context, token string) (*mapstore.MapConfig, error)
}

// Service decides whether a request may read or modify a resource, using
// three ordered mechanisms: the owner's API key, template-embedded signer
// auth, and a per-table privacy fallback. Explicit credentials outrank
// delegated trust, which outranks default table visibility.
type Service struct {
	metadata *metadata.Service
	mapStore TokenResolver
}

func NewService(metadataService *metadata.Service, mapStore TokenResolver) *Service {
	return &Service{metadata: metadataService, mapStore: mapStore}
}

// Authorize runs the decision ladder, assigning database credentials to the
// request as a side effect of a grant. It returns whether the request is
// authorized; an error means authorization could not be determined.
func (s *Service) Authorize(ctx context.Context, params *RequestParams) (bool, error) {
	byKey, err := s.authorizedByAPIKey(ctx, params)
	if err != nil {
		return false, err
	}
	if byKey {
		params.AuthorizedByAPIKey = true
		if err := s.SetDBAuth(ctx, params.User, params); err != nil {
			return false, err
		}
		return true, nil
	}

	signer, err := s.authorizedBySigner(ctx, params)
	if err != nil {
		return false, err
	}
	if signer != "" {
		params.AuthorizedBySigner = signer
		if err := s.SetDBAuth(ctx, signer, params); err != nil {
			return false, err
		}
		return true, nil
	}

	if params.Table != "" {
		// fall back to the table's privacy flag
		dbName, err := s.metadata.GetUserDBName(ctx, params.User)
		if err != nil {
			return false, err
		}
		privacy, err := s.metadata.GetTablePrivacy(ctx, dbName, params.Table)
		if err != nil {
			return false, err
		}
		return privacy == 0, nil
	}

	if params.Signer != "" {
		// a signer was named but did not validate
		return false, nil
	}

	// no credentials and no table: database security is the final gate
	return true, nil
}

// authorizedByAPIKey grants when the presented key matches the owner's
// stored map key.
func (s *Service) authorizedByAPIKey(ctx context.Context, params *RequestParams) (bool, error) {
	if params.APIKey == "" {
		return false, nil
	}
	storedKey, err := s.metadata.GetUserMapKey(ctx, params.User)
	if err != nil {
		return false, err
	}
	return storedKey != "" && params.APIKey == storedKey, nil
}

// authorizedBySigner grants when the request references a token whose
// template policy accepts the presented auth token. Returns the signer name
// on success, empty otherwise.
func (s *Service) authorizedBySigner(ctx context.Context, params *RequestParams) (string, error) {
	if params.Token == "" || params.Signer == "" {
		return "", nil
	}
	config, err := s.mapStore.Load(ctx, params.Token)
	if err != nil {
		return "", err
	}
	auth, ok := config.TemplateAuth()
	if !ok {
		return "", nil
	}
	if auth.Authorizes(params.AuthToken) {
		return params.Signer, nil
	}
	return "", nil
}

// SetDBAuth assigns database authentication parameters derived from the
// given user's metadata: the configured auth templates are rendered with
// the user's id and stored password.
func (s *Service) SetDBAuth(ctx context.Context, username string, params *RequestParams) error {
	env := environment_variables.EnvironmentVariables

	userID, err := s.metadata.GetUserID(ctx, username)
	if err != nil {
		return err
	}
	params.DBUser = renderAuthTemplate(env.POSTGRES_AUTH_USER, "user_id", userID)

	authPass := env.POSTGRES_AUTH_PASS
	if authPass == "" || !strings.Contains(authPass, "user_password") {
		return nil
	}
	password, err := s.metadata.GetUserDBPass(ctx, username)
	if err != nil {
		return err
	}
	params.DBPassword = renderAuthTemplate(authPass, "user_password", password)
	return nil
}

// SetDBConn assigns database connection parameters: configured defaults
// first, then the owner's stored overrides. A stored database user only
// replaces the public default, never explicitly assigned credentials.
func (s *Service) SetDBConn(ctx context.Context, owner string, params *RequestParams) error {
	env := environment_variables.EnvironmentVariables
	if params.DBUser == "" {
		params.DBUser = env.POSTGRES_USER
	}
	if params.DBPassword == "" {
		params.DBPassword = env.POSTGRES_PASSWORD
	}
	if params.DBHost == "" {
		params.DBHost = env.POSTGRES_HOST
	}
	if params.DBPort == "" {
		params.DBPort = env.POSTGRES_PORT
	}

	stored, err := s.metadata.GetUserDBConnectionParams(ctx, owner)
	if err != nil {
		return err
	}
	if stored.DBName != "" {
		params.DBName = stored.DBName
	}
	if stored.DBHost != "" {
		params.DBHost = stored.DBHost
	}
	if stored.DBPort != "" {
		params.DBPort = stored.DBPort
	}
	if stored.DBUser != "" && params.DBUser == env.POSTGRES_USER {
		params.DBUser = stored.DBUser
	}
	return nil
}

// renderAuthTemplate substitutes a single "<%= label %>" token in a
// credential template, tolerant of surrounding whitespace.
func renderAuthTemplate(tmpl, label, value string) string {
	if tmpl == "" {
		return value
	}
	out := strings.ReplaceAll(tmpl, "<%= "+label+" %>", value)
	out = strings.ReplaceAll(out, "<%="+label+"%>", value)
	return out
}
