package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarrios/gastosync/internal/config"
	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
	"github.com/mbarrios/gastosync/internal/remote"
)

func newClient(t *testing.T, serverURL string) *remote.HTTPClient {
	t.Helper()

	cfg := &config.APIConfig{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		UserAgent:  "gastosync-test",
	}
	logger := events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
	c := remote.NewHTTPClient(cfg, logger)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateCategoryRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/users/uid-1/categories", r.URL.Path)

		var doc remote.CategoryDoc
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "Food", doc.Name)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": "rem-1", "updated_at": 5000}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	res, err := client.CreateCategory(context.Background(), "uid-1", remote.CategoryDoc{
		Name: "Food", Icon: "burger", IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "rem-1", res.RemoteID)
	assert.Equal(t, int64(5000), res.UpdatedAt)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestValidationErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code": "invalid_name", "message": "name too long"}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	_, err := client.CreateCategory(context.Background(), "uid-1", remote.CategoryDoc{Name: "x"})
	require.Error(t, err)

	assert.True(t, models.IsRejected(err))
	assert.False(t, models.IsTransient(err))
	assert.Equal(t, int32(1), attempts.Load())

	var apiErr *models.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_name", apiErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestExhaustedRetriesClassifyAsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    time.Second,
		MaxRetries: 1,
		UserAgent:  "gastosync-test",
	}
	logger := events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
	client := remote.NewHTTPClient(cfg, logger)
	defer client.Close()

	_, err := client.Plans(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestConnectionRefusedClassifiesAsUnreachable(t *testing.T) {
	// Point at a closed port.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    time.Second,
		MaxRetries: 0,
		UserAgent:  "gastosync-test",
	}
	logger := events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
	client := remote.NewHTTPClient(cfg, logger)
	defer client.Close()

	_, err := client.CategoriesUpdatedAfter(context.Background(), "uid-1", 0)
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestCategoriesUpdatedAfterSendsCheckpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/uid-1/categories", r.URL.Path)
		assert.Equal(t, "12345", r.URL.Query().Get("updated_after"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"documents": [
            {"id": "rem-1", "name": "Food", "icono": "burger", "is_active": true, "updated_at": 20000, "deleted_at": null}
        ]}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	client.SetToken("tok-1")

	docs, err := client.CategoriesUpdatedAfter(context.Background(), "uid-1", 12345)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rem-1", docs[0].RemoteID)
	assert.Equal(t, "burger", docs[0].Icon)
	assert.Equal(t, int64(20000), docs[0].UpdatedAt)
	assert.Nil(t, docs[0].DeletedAt)
}

func TestGetUserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code": "not_found", "message": "no such user"}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	_, err := client.GetUser(context.Background(), "uid-missing")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestDeleteExpense(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/users/uid-1/expenses/rem-9", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	err := client.DeleteExpense(context.Background(), "uid-1", "rem-9")
	assert.NoError(t, err)
}
