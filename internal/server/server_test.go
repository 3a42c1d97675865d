package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"intellisurf/internal/config"
	"intellisurf/internal/model"
)

// newAgentServer 模拟 ADK api_server
func newAgentServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/list-apps", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{"academic-research"})
	})
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "s1", "appName": "academic-research", "userId": "dev-1"})
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "agent reply"}}},
		}})
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"agent ", "stream"} {
			data, _ := json.Marshal(map[string]any{
				"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
			})
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	})
	return httptest.NewServer(mux)
}

func testConfig(t *testing.T, agentURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: "test"},
		Agent: config.AgentConfig{
			BaseURL:       agentURL,
			AppName:       "academic-research",
			Timeout:       5 * time.Second,
			StreamTimeout: 5 * time.Second,
			LocalFallback: true,
		},
		Chat: config.ChatConfig{
			InlineThreshold: 500000,
			PreviewLength:   200,
			HistoryLimit:    10,
			LocalStorePath:  dir,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", DevMode: true, DevUserID: "dev-1"},
		Storage: config.StorageConfig{
			Type:  "local",
			Local: &config.LocalConfig{BasePath: dir + "/blobs", BaseURL: "/uploads"},
		},
	}
}

func TestServerRoutes(t *testing.T) {
	Convey("服务路由", t, func() {
		agent := newAgentServer()
		defer agent.Close()

		srv, err := New(testConfig(t, agent.URL))
		So(err, ShouldBeNil)
		engine := srv.Engine()

		do := func(method, path, body string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			engine.ServeHTTP(w, req)
			return w
		}

		Convey("健康检查", func() {
			So(do(http.MethodGet, "/health", "").Code, ShouldEqual, http.StatusOK)
			So(do(http.MethodGet, "/ready", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("agent 列表", func() {
			w := do(http.MethodGet, "/api/v1/adk-agents", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"agents":["academic-research"]}`)
		})

		Convey("非流式对话", func() {
			w := do(http.MethodPost, "/api/v1/adk-chat", `{"user_input":"hello","session_id":"s1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp model.ChatResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Response, ShouldEqual, "agent reply")
			So(resp.Source, ShouldEqual, model.SourceADK)
			So(resp.SessionID, ShouldEqual, "s1")
			So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
		})

		Convey("流式对话", func() {
			w := do(http.MethodPost, "/api/v1/adk-chat", `{"user_input":"hello","streaming":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `data: {"chunk":"agent "`)
			So(w.Body.String(), ShouldContainSubstring, `"done":true`)
			So(strings.Count(w.Body.String(), "data: "), ShouldEqual, 3)
		})

		Convey("未配置本地模型时 /chat 返回 503", func() {
			w := do(http.MethodPost, "/api/v1/chat", `{"user_input":"hello"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
