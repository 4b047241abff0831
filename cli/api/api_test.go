package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs414s24/contacts/cli/logger"
	"github.com/cs414s24/contacts/contacts"
)

func TestOpenDatabase(t *testing.T) {
	ctx := context.Background()

	db, err := OpenDatabase(ctx, &StoreOptions{Store: "memory"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDatabase(ctx, &StoreOptions{Store: "SQLite", DSN: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	_, err = contacts.NewBook(db).Add(ctx, contacts.Contact{ID: 1, Name: "A"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenDatabase(ctx, &StoreOptions{Store: "firestore"})
	require.Error(t, err)
}

func TestNewRouter(t *testing.T) {
	db, err := OpenDatabase(context.Background(), &StoreOptions{})
	require.NoError(t, err)
	defer db.Close()

	var logs bytes.Buffer
	handler := NewRouter(&RouterOptions{EndpointsPrefix: "/api"}, "Contacts", "1.2.3", "abc", "today",
		contacts.NewBook(db), logger.New(&logger.Options{Format: "json"}, &logs))

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/liveness", "").Code)
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/readiness", "").Code)

	resp := serve(http.MethodPost, "/api/contacts/", `{"id":7,"name":"A","email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	resp = serve(http.MethodDelete, "/api/contacts/8", "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	assert.Contains(t, logs.String(), `"level":"WARN","msg":"error occurred"`)
	assert.Contains(t, logs.String(), `"status":404`)

	resp = serve(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `build_info{goversion="`)
	assert.Contains(t, resp.Body.String(), `version="1.2.3"`)
	assert.Contains(t, resp.Body.String(), `http_requests_total{method="POST",path="/api/contacts/",status="201"} 1`)
	assert.Contains(t, resp.Body.String(), `http_requests_total{method="DELETE",path="/api/contacts/{id}",status="404"} 1`)
}

func TestRecoverMiddleware(t *testing.T) {
	var logs bytes.Buffer
	_, api := humatest.New(t)
	api.UseMiddleware(ctxlog{}.recoverMiddleware(logger.New(&logger.Options{}, &logs)))
	huma.Get(api, "/boom", func(context.Context, *struct{}) (*struct{}, error) {
		panic("boom")
	})

	resp := api.Get("/boom")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, logs.String(), "panic occurred")
	assert.Contains(t, logs.String(), "recovered=boom")
}
