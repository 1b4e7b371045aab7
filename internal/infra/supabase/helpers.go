package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// doPost inserts data (one object or an array) into table.
func (c *Client) doPost(ctx context.Context, table string, data any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, table, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, table)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("supabase: POST OK", zap.String("table", table))
	return body, nil
}

// doPatch updates the rows selected by path and returns their new state.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPatch, path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	return c.do(req, path)
}

// doDelete removes the rows selected by path and returns them.
func (c *Client) doDelete(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, path)
}

// ============================================================
// PostgREST query encoding
// ============================================================

// quote wraps v for use inside a PostgREST logic tree such as or=(...).
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func tablePath(table string, params url.Values) string {
	if len(params) == 0 {
		return table
	}
	return table + "?" + params.Encode()
}
