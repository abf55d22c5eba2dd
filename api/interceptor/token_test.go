package interceptor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cartograph/api/api/common"
	"cartograph/api/codes"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/op", OperatorInterceptor(secret), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextUID)) })
	r.GET("/player", TokenInterceptor(secret), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextUID)) })
	return r
}

func call(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func Test_OperatorInterceptor(t *testing.T) {
	r := newRouter()
	root, _ := IssueToken(secret, "op", []string{PrivilegeRoot}, time.Hour)
	player, _ := IssueToken(secret, "alice", nil, time.Hour)
	expired, _ := IssueToken(secret, "op", []string{PrivilegeRoot}, -time.Minute)
	forged, _ := IssueToken([]byte("other"), "op", []string{PrivilegeRoot}, time.Hour)

	if w := call(r, "/op", root); w.Code != http.StatusOK || w.Body.String() != "op" {
		t.Fatalf("root token rejected: %d %s", w.Code, w.Body.String())
	}
	for name, token := range map[string]string{"player": player, "expired": expired, "forged": forged, "none": ""} {
		w := call(r, "/op", token)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s token accepted", name)
		}
		var res common.Response
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Code != codes.CODE_ERR_SECURITY {
			t.Fatalf("%s: unexpected body %s", name, w.Body.String())
		}
	}
	if w := call(r, "/player", player); w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("player token rejected")
	}
	if w := call(r, "/player?token="+player, ""); w.Code != http.StatusOK {
		t.Fatalf("query token rejected")
	}
}
