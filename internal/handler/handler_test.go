package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/service"
	"deltauid-backend-go/internal/utils"
	"deltauid-backend-go/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAdminToken = "admin-secret"
	testSalt       = "salt"
)

type fakeSubmitter struct {
	requests []model.LoginRequest
	err      error
}

func (f *fakeSubmitter) SubmitLogin(req model.LoginRequest) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.requests = append(f.requests, req)
	return int64(len(f.requests)), nil
}

func (f *fakeSubmitter) GetStats() map[string]interface{} {
	return map[string]interface{}{"submitted": len(f.requests)}
}

type fakeCredentials struct {
	stored  map[string]*model.Credential
	added   []*model.Credential
	refresh *service.RefreshResult
}

func (f *fakeCredentials) Export(_ context.Context, botID, userID string) (*model.ExportedCredential, error) {
	cred, ok := f.stored[botID+":"+userID]
	if !ok {
		return nil, service.ErrCredentialNotFound
	}
	return &model.ExportedCredential{OpenID: cred.OpenID, Token: cred.AccessToken, Platform: cred.Platform}, nil
}

func (f *fakeCredentials) AddCredential(_ context.Context, cred *model.Credential) error {
	f.added = append(f.added, cred)
	return nil
}

func (f *fakeCredentials) RefreshAll(context.Context) (*service.RefreshResult, error) {
	if f.refresh == nil {
		return nil, errors.New("boom")
	}
	return f.refresh, nil
}

func newTestRouter(sub LoginSubmitter, creds CredentialManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware())

	logger := zap.NewNop()
	auth := AuthMiddleware(testAdminToken, logger)
	api := router.Group("/api")
	NewLoginHandler(sub, logger).RegisterRoutes(api, auth)
	NewCredentialHandler(creds, testSalt, logger).RegisterRoutes(api, auth)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestStartLogin(t *testing.T) {
	sub := &fakeSubmitter{}
	router := newTestRouter(sub, &fakeCredentials{})

	w, resp := doJSON(t, router, http.MethodPost, "/api/login",
		gin.H{"platform": "微信", "bot_id": "b1", "user_id": "u1", "group_id": "g1"}, testAdminToken)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, resp["success"])
	require.Len(t, sub.requests, 1)
	assert.Equal(t, model.PlatformWeChat, sub.requests[0].Platform)
	assert.Equal(t, model.LoginTarget{BotID: "b1", UserID: "u1", GroupID: "g1"}, sub.requests[0].Target)

	w, _ = doJSON(t, router, http.MethodPost, "/api/login", gin.H{"bot_id": "b1", "user_id": "u2"}, testAdminToken)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, model.PlatformQQ, sub.requests[1].Platform)
}

func TestStartLoginRejections(t *testing.T) {
	cases := []struct {
		name   string
		body   gin.H
		token  string
		err    error
		status int
	}{
		{"no token", gin.H{"bot_id": "b", "user_id": "u"}, "", nil, http.StatusUnauthorized},
		{"bad token", gin.H{"bot_id": "b", "user_id": "u"}, "nope", nil, http.StatusUnauthorized},
		{"missing user", gin.H{"bot_id": "b"}, testAdminToken, nil, http.StatusBadRequest},
		{"bad platform", gin.H{"bot_id": "b", "user_id": "u", "platform": "steam"}, testAdminToken, nil, http.StatusBadRequest},
		{"duplicate", gin.H{"bot_id": "b", "user_id": "u"}, testAdminToken, worker.ErrDuplicateLogin, http.StatusConflict},
		{"full", gin.H{"bot_id": "b", "user_id": "u"}, testAdminToken, worker.ErrQueueFull, http.StatusTooManyRequests},
		{"stopped", gin.H{"bot_id": "b", "user_id": "u"}, testAdminToken, worker.ErrQueueStopped, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			router := newTestRouter(&fakeSubmitter{err: c.err}, &fakeCredentials{})
			w, resp := doJSON(t, router, http.MethodPost, "/api/login", c.body, c.token)
			assert.Equal(t, c.status, w.Code)
			assert.Equal(t, false, resp["success"])
		})
	}
}

func TestLoginStats(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, &fakeCredentials{})

	w, resp := doJSON(t, router, http.MethodGet, "/api/login/stats", nil, testAdminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"submitted": float64(0)}, resp["data"])
}

func TestAuthWithoutConfiguredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", AuthMiddleware("", zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })

	w, _ := doJSON(t, router, http.MethodGet, "/x", nil, "anything")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExportCredential(t *testing.T) {
	creds := &fakeCredentials{stored: map[string]*model.Credential{
		"b1:u1": {OpenID: "oid", AccessToken: "tok", Platform: model.PlatformQQ},
	}}
	router := newTestRouter(&fakeSubmitter{}, creds)

	w, resp := doJSON(t, router, http.MethodGet, "/api/credentials/b1/u1", nil, testAdminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"openid": "oid", "token": "tok", "platform": "qq"}, resp["data"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/credentials/b1/u2", nil, testAdminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "导出失败! 请先登录!", resp["error"])
}

func TestAddCredentialSigned(t *testing.T) {
	creds := &fakeCredentials{}
	router := newTestRouter(&fakeSubmitter{}, creds)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("fields", func(t *testing.T) {
		body := gin.H{
			"bot_id": "b1", "user_id": "u1", "openid": "oid-1", "token": "tok-1", "platform": "qq",
			"timestamp": ts, "sign": utils.GenerateCredentialSign(utils.CredentialSignParams{
				BotID: "b1", UserID: "u1", OpenID: "oid-1", Token: "tok-1", Platform: "qq", Timestamp: ts,
			}, testSalt),
		}
		w, resp := doJSON(t, router, http.MethodPost, "/api/credentials", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "添加ck成功!", resp["message"])
	})

	t.Run("text", func(t *testing.T) {
		body := gin.H{
			"bot_id": "b1", "user_id": "u2", "text": "openid:oid-2\ntoken:tok-2\nplatform:wx",
			"timestamp": ts, "sign": utils.GenerateCredentialSign(utils.CredentialSignParams{
				BotID: "b1", UserID: "u2", OpenID: "oid-2", Token: "tok-2", Platform: "wx", Timestamp: ts,
			}, testSalt),
		}
		w, _ := doJSON(t, router, http.MethodPost, "/api/credentials", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	require.Len(t, creds.added, 2)
	assert.Equal(t, &model.Credential{BotID: "b1", UserID: "u1", OpenID: "oid-1", AccessToken: "tok-1", Platform: model.PlatformQQ}, creds.added[0])
	assert.Equal(t, model.PlatformWeChat, creds.added[1].Platform)
	assert.Equal(t, "tok-2", creds.added[1].AccessToken)
}

func TestAddCredentialRejected(t *testing.T) {
	creds := &fakeCredentials{}
	router := newTestRouter(&fakeSubmitter{}, creds)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	cases := []struct {
		name   string
		body   gin.H
		status int
	}{
		{"bad sign", gin.H{"bot_id": "b", "user_id": "u", "openid": "o", "token": "t", "timestamp": ts, "sign": "0000"}, http.StatusUnauthorized},
		{"missing sign", gin.H{"bot_id": "b", "user_id": "u", "openid": "o", "token": "t", "timestamp": ts}, http.StatusBadRequest},
		{"bad text", gin.H{"bot_id": "b", "user_id": "u", "text": "openid:o", "timestamp": ts, "sign": "x"}, http.StatusBadRequest},
		{"bad platform", gin.H{"bot_id": "b", "user_id": "u", "openid": "o", "platform": "pc", "timestamp": ts, "sign": "x"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, _ := doJSON(t, router, http.MethodPost, "/api/credentials", c.body, "")
			assert.Equal(t, c.status, w.Code)
		})
	}
	assert.Empty(t, creds.added)
}

func TestAddCredentialTamperedOrStale(t *testing.T) {
	creds := &fakeCredentials{}
	router := newTestRouter(&fakeSubmitter{}, creds)

	signed := func(ts string) gin.H {
		return gin.H{
			"bot_id": "b1", "user_id": "u1", "openid": "oid-1", "token": "tok-1", "platform": "qq",
			"timestamp": ts, "sign": utils.GenerateCredentialSign(utils.CredentialSignParams{
				BotID: "b1", UserID: "u1", OpenID: "oid-1", Token: "tok-1", Platform: "qq", Timestamp: ts,
			}, testSalt),
		}
	}
	now := strconv.FormatInt(time.Now().Unix(), 10)

	cases := []struct {
		name   string
		mutate func(gin.H)
	}{
		{"swapped token", func(b gin.H) { b["token"] = "attacker-token" }},
		{"swapped bot", func(b gin.H) { b["bot_id"] = "other-bot" }},
		{"swapped platform", func(b gin.H) { b["platform"] = "wx" }},
		{"stale timestamp", func(b gin.H) {
			stale := strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10)
			for k, v := range signed(stale) {
				b[k] = v
			}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body := signed(now)
			c.mutate(body)
			w, _ := doJSON(t, router, http.MethodPost, "/api/credentials", body, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	assert.Empty(t, creds.added)
}

func TestRefreshCredentials(t *testing.T) {
	creds := &fakeCredentials{refresh: &service.RefreshResult{Total: 3, Valid: 2, Invalid: 1}}
	router := newTestRouter(&fakeSubmitter{}, creds)

	w, resp := doJSON(t, router, http.MethodPost, "/api/credentials/refresh", nil, testAdminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])

	w, _ = doJSON(t, router, http.MethodPost, "/api/credentials/refresh", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, &fakeCredentials{})

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
