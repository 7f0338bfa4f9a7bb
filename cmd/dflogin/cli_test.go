package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWeChatBackend(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/login/wechat/qrcode", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status": true,
			"data":   map[string]string{"qrCode": srv.URL + "/qr.png", "uuid": "uuid-1"},
		})
	})
	mux.HandleFunc("/qr.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-a-png"))
	})
	mux.HandleFunc("/login/wechat/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": true, "code": 3, "data": map[string]string{"wx_code": "wx-1"}})
	})
	mux.HandleFunc("/login/wechat/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status": true,
			"data":   map[string]string{"access_token": "wx-at", "openid": "wx-oid"},
		})
	})
	mux.HandleFunc("/user/bind", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"status": true})
	})
	mux.HandleFunc("/user/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status": true,
			"data":   map[string]interface{}{"player": map[string]string{"charac_name": "终端号"}, "money": 2300},
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginThenExport(t *testing.T) {
	srv := newWeChatBackend(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cli.db")
	qrPath := filepath.Join(dir, "qr.png")
	common := []string{"--db-driver", "sqlite", "--sqlite-path", dbPath, "--base-url", srv.URL, "--log-level", "error"}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(common, "login", "--platform", "wx", "--user", "u1", "--qr-file", qrPath))
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "请打开手机微信使用摄像头扫码")
	assert.Contains(t, out.String(), "登录成功，角色名：终端号，现金：2.3K")
	saved, err := os.ReadFile(qrPath)
	require.NoError(t, err)
	assert.Equal(t, "not-a-png", string(saved))

	out.Reset()
	rootCmd.SetArgs(append(common, "export", "--user", "u1"))
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "openid: wx-oid\ntoken: wx-at\nplatform: wx\n", out.String())
}
