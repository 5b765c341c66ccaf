package d1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
	"github.com/inkpost/inkpost-backend/internal/db/query"
)

// DefaultBaseURL is the Cloudflare v4 API root
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// maxResponseBytes bounds how much of an upstream body is read
const maxResponseBytes = 32 << 20

// Config identifies a D1 database and the credentials used to reach it
type Config struct {
	BaseURL    string
	AccountID  string
	DatabaseID string
	APIToken   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Executor sends statements to the D1 HTTP query endpoint
type Executor struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.SugaredLogger
}

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultMeta struct {
	Changes int64 `json:"changes"`
}

type resultBlock struct {
	Results []map[string]any `json:"results"`
	Success *bool            `json:"success,omitempty"`
	Error   string           `json:"error,omitempty"`
	Meta    resultMeta       `json:"meta"`
}

type queryResponse struct {
	Success bool          `json:"success"`
	Errors  []apiMessage  `json:"errors"`
	Result  []resultBlock `json:"result"`
}

// New validates cfg and builds an executor
func New(cfg Config, logger *zap.SugaredLogger) (*Executor, error) {
	if cfg.AccountID == "" || cfg.DatabaseID == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("d1 account id, database id and api token are required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Executor{
		endpoint: fmt.Sprintf("%s/accounts/%s/d1/database/%s/query", base, cfg.AccountID, cfg.DatabaseID),
		token:    cfg.APIToken,
		client:   client,
		logger:   logger,
	}, nil
}

func (e *Executor) Dialect() interfaces.Dialect {
	return interfaces.DialectSQLite
}

func (e *Executor) Query(ctx context.Context, stmt string, args ...any) ([]interfaces.Row, error) {
	blocks, err := e.do(ctx, "d1.query", stmt, args)
	if err != nil {
		return nil, err
	}

	rows := []interfaces.Row{}
	for _, block := range blocks {
		for _, raw := range block.Results {
			row := make(interfaces.Row, len(raw))
			for k, v := range raw {
				row[k] = normalize(v)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (e *Executor) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	blocks, err := e.do(ctx, "d1.exec", stmt, args)
	if err != nil {
		return 0, err
	}
	var changes int64
	for _, block := range blocks {
		changes += block.Meta.Changes
	}
	return changes, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	_, err := e.Query(ctx, "SELECT 1 AS ok")
	return err
}

func (e *Executor) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// Bootstrap creates the posts table; D1 has no database/sql driver for goose
func (e *Executor) Bootstrap(ctx context.Context) error {
	for _, stmt := range query.NewBuilder(e.Dialect()).CreateTable() {
		if _, err := e.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to bootstrap d1 schema: %w", err)
		}
	}
	return nil
}

func (e *Executor) do(ctx context.Context, op, stmt string, args []any) ([]resultBlock, error) {
	params := args
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(queryRequest{SQL: stmt, Params: params})
	if err != nil {
		return nil, interfaces.Rejected(op, "failed to encode parameters", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, interfaces.Unavailable(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	// statement text only; parameter values and credentials stay out of logs
	e.logger.Debugw("D1 query", "sql", stmt, "params", len(params))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, interfaces.Unavailable(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, interfaces.Unavailable(op, err)
	}

	var parsed queryResponse
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		if resp.StatusCode >= 300 {
			return nil, interfaces.Unavailablef(op, "HTTP %d", resp.StatusCode)
		}
		return nil, interfaces.Unavailablef(op, "malformed response: %v", err)
	}

	if !parsed.Success || resp.StatusCode >= 300 {
		detail := joinMessages(parsed.Errors)
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		e.logger.Warnw("D1 query failed", "status", resp.StatusCode, "errors", detail)
		if resp.StatusCode >= 500 {
			return nil, interfaces.Unavailablef(op, "%s", detail)
		}
		return nil, interfaces.Rejected(op, detail, nil)
	}

	for _, block := range parsed.Result {
		if block.Success != nil && !*block.Success {
			return nil, interfaces.Rejected(op, block.Error, nil)
		}
	}

	return parsed.Result, nil
}

func joinMessages(msgs []apiMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Code != 0 {
			parts = append(parts, fmt.Sprintf("%d: %s", m.Code, m.Message))
		} else {
			parts = append(parts, m.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// normalize turns JSON numbers into int64 when integral, float64 otherwise
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
