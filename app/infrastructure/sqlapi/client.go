package sqlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/maplane/tile-gateway/config/environment_variables"
)

// DBParams carries the database credentials a query should run under.
type DBParams struct {
	User   string
	Pass   string
	Host   string
	Port   string
	DBName string
	APIKey string
}

// AffectedTablesResult pairs the table set read by a statement with the most
// recent modification time (epoch milliseconds) across those tables.
type AffectedTablesResult struct {
	AffectedTables  []string
	LastUpdatedTime int64
}

// Client talks to the per-user SQL API to analyze which relational tables a
// statement reads. The SQL API is addressed per user:
// {protocol}://{user}.{domain}:{port}/api/v1/sql.
type Client struct {
	client   *resty.Client
	protocol string
	domain   string
	port     string
}

func NewClient() *Client {
	env := environment_variables.EnvironmentVariables
	protocol := env.SQLAPI_PROTOCOL
	if protocol == "" {
		protocol = "http"
	}
	domain := env.SQLAPI_DOMAIN
	if domain == "" {
		domain = "localhost"
	}
	port := env.SQLAPI_PORT
	if port == "" {
		port = "8080"
	}
	return &Client{
		client:   resty.New().SetTimeout(10 * time.Second),
		protocol: protocol,
		domain:   domain,
		port:     port,
	}
}

func (c *Client) baseURL(username string) string {
	return fmt.Sprintf("%s://%s.%s:%s/api/v1/sql", c.protocol, username, c.domain, c.port)
}

type queryResponse struct {
	Rows  []map[string]json.RawMessage `json:"rows"`
	Error []string                     `json:"error"`
}

func (c *Client) runQuery(ctx context.Context, username string, db DBParams, sql string) (*queryResponse, error) {
	req := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": sql})
	if db.APIKey != "" {
		req.SetQueryParam("api_key", db.APIKey)
	}

	resp, err := req.Post(c.baseURL(username))
	if err != nil {
		return nil, fmt.Errorf("could not connect to SQL API: %w", err)
	}

	var result queryResponse
	if err := json.Unmarshal(resp.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("malformed SQL API response: %w", err)
	}
	if len(result.Error) > 0 {
		return nil, fmt.Errorf("SQL API error: %s", strings.Join(result.Error, "; "))
	}
	if resp.IsError() {
		return nil, fmt.Errorf("SQL API returned status %d", resp.StatusCode())
	}
	return &result, nil
}

// GetAffectedTablesInQuery returns the tables read by the given statement.
func (c *Client) GetAffectedTablesInQuery(ctx context.Context, username string, db DBParams, sql string) ([]string, error) {
	query := fmt.Sprintf("SELECT CDB_QueryTables($windshaft$%s$windshaft$)", sql)
	result, err := c.runQuery(ctx, username, db, query)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("SQL API returned no rows for affected tables query")
	}
	var tableList string
	if err := json.Unmarshal(result.Rows[0]["cdb_querytables"], &tableList); err != nil {
		return nil, fmt.Errorf("malformed affected tables row: %w", err)
	}
	return parseTableArray(tableList), nil
}

// GetAffectedTablesAndLastUpdatedTime additionally resolves the most recent
// modification time across the affected tables.
func (c *Client) GetAffectedTablesAndLastUpdatedTime(ctx context.Context, username string, db DBParams, sql string) (*AffectedTablesResult, error) {
	tables, err := c.GetAffectedTablesInQuery(ctx, username, db, sql)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = "'" + strings.ReplaceAll(t, "'", "''") + "'"
	}
	query := fmt.Sprintf(
		"SELECT EXTRACT(EPOCH FROM max(updated_at))*1000 AS max FROM CDB_TableMetadata m WHERE m.tabname::text = ANY (ARRAY[%s])",
		strings.Join(quoted, ","),
	)
	result, err := c.runQuery(ctx, username, db, query)
	if err != nil {
		return nil, err
	}

	lastUpdated := int64(0)
	if len(result.Rows) > 0 {
		var max float64
		if err := json.Unmarshal(result.Rows[0]["max"], &max); err == nil {
			lastUpdated = int64(max)
		}
	}
	return &AffectedTablesResult{AffectedTables: tables, LastUpdatedTime: lastUpdated}, nil
}

// parseTableArray decodes the textual postgres array form "{t1,t2}".
func parseTableArray(raw string) []string {
	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tables := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tables = append(tables, p)
		}
	}
	return tables
}
