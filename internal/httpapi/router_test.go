package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"segflow/internal/config"
	"segflow/internal/configset"
	"segflow/internal/execution"
	"segflow/internal/ingress"
	"segflow/internal/mailer"
	"segflow/internal/membership"
	"segflow/internal/sandbox"
	"segflow/internal/segment"
	"segflow/internal/testutil"
)

const testAPIKey = "test-api-key"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewTestDB(t)
	executions := execution.New()
	segments := segment.New()
	membershipResolver := membership.New(executions)
	sb := sandbox.New(0)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	dispatcher := mailer.New(db, sb, client, zaptest.NewLogger(t))
	reconciler := configset.New(segments, membershipResolver, executions)
	services := ingress.New(db, segments, membershipResolver, executions, dispatcher, reconciler, zaptest.NewLogger(t))

	cfg := &config.Config{APIKey: testAPIKey}
	return NewRouter(cfg, services, zaptest.NewLogger(t))
}

func doJSON(router http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRoutesRejectMissingOrWrongToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodGet, "/api/segment", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/segment", "wrong-key", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/user/u1", testAPIKey, map[string]any{
		"attributes": map[string]any{"email": "u1@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/user/u1", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool           `json:"success"`
		Value   map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "u1@example.com", body.Value["email"])

	rec = doJSON(router, http.MethodDelete, "/api/user/u1", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/user/u1", testAPIKey, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSegmentAndCampaignOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/user/u1", testAPIKey, map[string]any{
		"attributes": map[string]any{"email": "u1@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/segment/all", testAPIKey, map[string]any{
		"evaluator": "SELECT id FROM users",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/segment/all/user", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listBody struct {
		Value []string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Equal(t, []string{"u1"}, listBody.Value)

	rec = doJSON(router, http.MethodPost, "/api/campaign/c1", testAPIKey, map[string]any{
		"flow":     "function*(ctx){}",
		"behavior": "static",
		"segments": []string{"all"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/api/segment/all", testAPIKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/api/campaign/c1", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodDelete, "/api/segment/all", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPushConfigOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	cfg := configset.Config{
		Templates: []configset.TemplateInput{
			{ID: "welcome", Subject: "Hi", HTML: "<p>hi</p>"},
		},
	}
	rec := doJSON(router, http.MethodPost, "/api/config", testAPIKey, cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Value struct {
			Operations int `json:"operations"`
		} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Value.Operations)

	rec = doJSON(router, http.MethodPost, "/api/config", testAPIKey, cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	var noChange struct {
		Value struct {
			NoChanges bool `json:"noChanges"`
		} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &noChange))
	require.True(t, noChange.Value.NoChanges)
}

func TestSetEmailProviderRequiresName(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(router, http.MethodPost, "/api/email/config", testAPIKey, map[string]any{
		"config":      map[string]any{"apiKey": "abc"},
		"fromAddress": "noreply@example.com",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/email/config", testAPIKey, map[string]any{
		"config":      map[string]any{"name": "postmark", "apiKey": "abc"},
		"fromAddress": "noreply@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}
