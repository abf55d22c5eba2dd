package http

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cartograph/api/api/common"
	"cartograph/api/api/http/controller/mapper"
	"cartograph/api/api/interceptor"
	"cartograph/api/api/ws"
	"cartograph/api/codes"
	"cartograph/api/service"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

var secret = []byte("router-secret")

func setup(t *testing.T, save worldmap.SaveGame) (*gin.Engine, *service.MapServer, string) {
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub()
	server := service.NewMapServer(service.ServerOptions{Enabled: true, Language: "en"}, service.ServerDeps{
		Save:      save,
		Sink:      hub,
		Messenger: hub,
		Tables:    system.NewMemoryTableStore(),
	})
	server.Load()
	hub.Attach(server, nil)
	mapper.Bind(server)

	r := gin.New()
	Routers(r.Group("/"), hub, secret)
	token, err := interceptor.IssueToken(secret, "op", []string{interceptor.PrivilegeRoot}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return r, server, token
}

func do(t *testing.T, r *gin.Engine, method, path, token, body string) common.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var res common.Response
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("%s %s: bad body %q", method, path, w.Body.String())
	}
	return res
}

func Test_Routers_Mapper(t *testing.T) {
	r, server, token := setup(t, system.NewMemorySaveGame())

	if res := do(t, r, nethttp.MethodGet, "/public/health", "", ""); res.Code != codes.CODE_SUCCESS {
		t.Fatalf("health %+v", res)
	}
	if res := do(t, r, nethttp.MethodGet, "/mapper/status", "", ""); res.Code != codes.CODE_ERR_SECURITY {
		t.Fatalf("status without token %+v", res)
	}
	if res := do(t, r, nethttp.MethodGet, "/mapper/status", token, ""); res.Code != codes.CODE_SUCCESS {
		t.Fatalf("status %+v", res)
	}

	if res := do(t, r, nethttp.MethodGet, "/mapper/players/alice", token, ""); res.Code != codes.CODE_ERR_OBJ_NOT_FOUND {
		t.Fatalf("unknown player %+v", res)
	}
	server.MarkChunksForRedraw("alice", worldmap.ChunkPosition{}, 1, 100000, 1, 0, false)
	res := do(t, r, nethttp.MethodGet, "/mapper/players/alice", token, "")
	data, _ := res.Data.(map[string]interface{})
	if res.Code != codes.CODE_SUCCESS || data["exploredChunks"] != float64(9) {
		t.Fatalf("player info %+v", res)
	}

	if res := do(t, r, nethttp.MethodPost, "/mapper/save", token, ""); res.Code != codes.CODE_SUCCESS || server.Dirty() {
		t.Fatalf("save %+v", res)
	}
	if res := do(t, r, nethttp.MethodPost, "/mapper/restore", token, ""); res.Code != codes.CODE_ERR_MAP_NOT_CORRUPTED {
		t.Fatalf("restore on healthy data %+v", res)
	}

	if res := do(t, r, nethttp.MethodPost, "/mapper/tables", token, `{"x":1,"y":2,"z":3}`); res.Code != codes.CODE_SUCCESS || res.Data != "1,2,3" {
		t.Fatalf("place table %+v", res)
	}
	if res := do(t, r, nethttp.MethodPost, "/mapper/tables", token, `{"x":1,"y":2,"z":3}`); res.Code != codes.CODE_ERR_BAD_PARAMS {
		t.Fatalf("duplicate table %+v", res)
	}
	if res := do(t, r, nethttp.MethodPost, "/mapper/tables", token, `{"x":`); res.Code != codes.CODE_ERR_REQFORMAT {
		t.Fatalf("bad body %+v", res)
	}
	if res := do(t, r, nethttp.MethodDelete, "/mapper/tables/1,2,3", token, ""); res.Code != codes.CODE_SUCCESS {
		t.Fatalf("remove table %+v", res)
	}
	if res := do(t, r, nethttp.MethodDelete, "/mapper/tables/nope", token, ""); res.Code != codes.CODE_ERR_BAD_PARAMS {
		t.Fatalf("bad position %+v", res)
	}
}

func Test_Routers_RestoreCorrupted(t *testing.T) {
	save := system.NewMemorySaveGame()
	_ = save.StoreData(worldmap.SaveKey, []byte("garbage"))
	r, server, token := setup(t, save)
	if server.Status() != service.StatusCorruptedData {
		t.Fatalf("expected corrupted status")
	}
	if res := do(t, r, nethttp.MethodPost, "/mapper/restore", token, ""); res.Code != codes.CODE_SUCCESS {
		t.Fatalf("restore %+v", res)
	}
	if server.Status() != service.StatusEnabled {
		t.Fatalf("restore over http did not enable the map")
	}
}
