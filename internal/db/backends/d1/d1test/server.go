// Package d1test serves the D1 query API shape on top of a local executor.
package d1test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/inkpost/inkpost-backend/internal/db/interfaces"
)

// Token is the bearer token the fake server accepts
const Token = "test-token"

// Server is a fake D1 endpoint
type Server struct {
	*httptest.Server
	// Down makes every request fail with 503 while set
	Down atomic.Bool
	// Requests counts received queries
	Requests atomic.Int64
}

// NewServer serves /accounts/{a}/d1/database/{d}/query by running statements on exec
func NewServer(t *testing.T, exec interfaces.Executor) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Requests.Add(1)
		if s.Down.Load() {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"errors":  []map[string]any{{"code": 10000, "message": "Authentication error"}},
			})
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/query") {
			http.NotFound(w, r)
			return
		}

		decoder := json.NewDecoder(r.Body)
		decoder.UseNumber()
		var raw struct {
			SQL    string `json:"sql"`
			Params []any  `json:"params"`
		}
		if err := decoder.Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		args := make([]any, len(raw.Params))
		for i, p := range raw.Params {
			if n, ok := p.(json.Number); ok {
				if v, err := n.Int64(); err == nil {
					args[i] = v
					continue
				}
				v, _ := n.Float64()
				args[i] = v
				continue
			}
			args[i] = p
		}

		block := map[string]any{"success": true, "results": []any{}, "meta": map[string]any{"changes": 0}}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(raw.SQL)), "SELECT") {
			rows, err := exec.Query(r.Context(), raw.SQL, args...)
			if err != nil {
				writeFailure(w, err)
				return
			}
			block["results"] = rows
		} else {
			changes, err := exec.Exec(r.Context(), raw.SQL, args...)
			if err != nil {
				writeFailure(w, err)
				return
			}
			block["meta"] = map[string]any{"changes": changes}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"errors":   []any{},
			"messages": []any{},
			"result":   []any{block},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func writeFailure(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"success": false,
		"errors":  []map[string]any{{"code": 7500, "message": err.Error()}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
