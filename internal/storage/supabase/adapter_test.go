package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// fakeREST emulates just enough of the PostgREST surface for one test:
// the connect probe plus whatever the handler serves.
func fakeREST(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/rest/v1/user_profiles" &&
			r.URL.Query().Get("select") == "id" && r.Header.Get("Prefer") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte("[]"))
			return
		}
		handler(w, r)
	}))

	client := NewClient(config.SupabaseConfig{
		URL:            srv.URL,
		AnonKey:        "anon-key",
		TimeoutSeconds: 5,
	}, logging.NewLogger())
	require.NoError(t, client.Connect(context.Background()))

	return client, srv.Close
}

func TestConnectSetsHeaders(t *testing.T) {
	var gotAPIKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := NewClient(config.SupabaseConfig{
		URL:            srv.URL,
		AnonKey:        "anon-key",
		ServiceRoleKey: "service-key",
	}, logging.NewLogger())

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, "anon-key", gotAPIKey)
	assert.Equal(t, "Bearer service-key", gotAuth)

	// second connect is a no-op
	require.NoError(t, client.Connect(context.Background()))
}

func TestConnectRejectedProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.SupabaseConfig{URL: srv.URL, AnonKey: "bad"}, logging.NewLogger())
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, storage.IsDatabase(err))
}

func TestOperationsRequireConnect(t *testing.T) {
	client := NewClient(config.SupabaseConfig{URL: "http://localhost:1", AnonKey: "k"}, logging.NewLogger())
	users := NewUserAdapter(client, logging.NewLogger())

	_, err := users.GetByID(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, storage.IsDatabase(err))
	assert.Contains(t, err.Error(), "not connected")
}

func TestCreatePopulatesAndReturnsRepresentation(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/rest/v1/user_profiles", r.URL.Path)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var u models.UserProfile
		require.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		assert.NotEmpty(t, u.ID)
		assert.False(t, u.CreatedAt.IsZero())
		assert.Equal(t, "UTC", u.Timezone)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]models.UserProfile{u})
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	created, err := users.Create(context.Background(), &models.UserProfile{Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", created.Username)
	assert.NotEmpty(t, created.ID)
}

func TestGetByIDNotFound(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.missing", r.URL.Query().Get("id"))
		w.Write([]byte("[]"))
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	got, err := users.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByFieldUnknownField(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an unknown field")
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	_, err := users.GetByField(context.Background(), "password", "x")
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err))
}

func TestListBuildsFilterQuery(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.active", q.Get("status"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "20", q.Get("offset"))
		w.Write([]byte("[]"))
	})
	defer done()

	workflows := NewWorkflowAdapter(client, logging.NewLogger())
	out, err := workflows.List(context.Background(), storage.ListOptions{
		Filters: storage.Filters{"status": "active"},
		Limit:   10,
		Offset:  20,
		OrderBy: "-created_at",
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListByTagsUsesOverlapOperator(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ov.{etl,reporting}", r.URL.Query().Get("tags"))
		w.Write([]byte("[]"))
	})
	defer done()

	workflows := NewWorkflowAdapter(client, logging.NewLogger())
	_, err := workflows.ListByTags(context.Background(), []string{"etl", "reporting"})
	require.NoError(t, err)
}

func TestLogListTimeRange(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.exec-1", q.Get("execution_id"))
		assert.Equal(t, "eq.error", q.Get("level"))
		assert.Equal(t, []string{
			"gte." + start.Format(time.RFC3339Nano),
			"lte." + end.Format(time.RFC3339Nano),
		}, q["timestamp"])
		assert.Equal(t, "timestamp.asc", q.Get("order"))
		w.Write([]byte("[]"))
	})
	defer done()

	logs := NewLogAdapter(client, logging.NewLogger())
	_, err := logs.ListByExecution(context.Background(), "exec-1", storage.LogQuery{
		Level: models.LogLevelError,
		Start: &start,
		End:   &end,
	})
	require.NoError(t, err)
}

func TestCountParsesContentRange(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Range", "0-0/57")
		w.Write([]byte("[]"))
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	n, err := users.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(57), n)
}

func TestUpdateMissingRecord(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		w.Write([]byte("[]"))
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	_, err := users.Update(context.Background(), "missing", storage.Fields{"timezone": "CET"})
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err))
}

func TestUpdateAddsUpdatedAt(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.Contains(t, patch, "timezone")
		assert.Contains(t, patch, "updated_at")
		json.NewEncoder(w).Encode([]models.UserProfile{{ID: "u1", Timezone: "CET"}})
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	got, err := users.Update(context.Background(), "u1", storage.Fields{"timezone": "CET"})
	require.NoError(t, err)
	assert.Equal(t, "CET", got.Timezone)
}

func TestUniqueViolationIsValidation(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"user_profiles_username_key\""}`))
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	_, err := users.Create(context.Background(), &models.UserProfile{Username: "ada"})
	require.Error(t, err)
	assert.True(t, storage.IsValidation(err))
	assert.Contains(t, err.Error(), "unique constraint")
}

func TestDeleteReportsRemoval(t *testing.T) {
	calls := 0
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode([]models.UserProfile{{ID: "u1"}})
			return
		}
		w.Write([]byte("[]"))
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())

	removed, err := users.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = users.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTransactionsNotSupported(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("transactions must not reach the server")
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	ctx := context.Background()

	_, err := users.BeginTx(ctx)
	require.Error(t, err)
	assert.True(t, storage.IsNotSupported(err))

	assert.True(t, storage.IsNotSupported(users.CommitTx(ctx, nil)))
	assert.True(t, storage.IsNotSupported(users.RollbackTx(ctx, nil)))

	_, err = users.ExecuteRaw(ctx, "SELECT 1")
	assert.True(t, storage.IsNotSupported(err))
}

func TestGetByEmailUsesJSONAccessor(t *testing.T) {
	client, done := fakeREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.ada@example.com", r.URL.Query().Get("preferences->>email"))
		json.NewEncoder(w).Encode([]models.UserProfile{{ID: "u1", Username: "ada"}})
	})
	defer done()

	users := NewUserAdapter(client, logging.NewLogger())
	got, err := users.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ada", got.Username)
}
