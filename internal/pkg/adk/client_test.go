package adk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer(handler http.HandlerFunc) (*httptest.Server, *Client) {
	srv := httptest.NewServer(handler)
	client := NewClient(Config{BaseURL: srv.URL + "/", AppName: "academic-research"})
	return srv, client
}

func TestClientSessions(t *testing.T) {
	Convey("Session 接口", t, func() {
		var gotMethod, gotPath string
		var gotBody map[string]any

		srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
			gotMethod, gotPath = r.Method, r.URL.Path
			gotBody = nil
			_ = json.NewDecoder(r.Body).Decode(&gotBody)

			switch {
			case r.URL.Path == "/list-apps":
				_, _ = w.Write([]byte(`["academic-research","other"]`))
			case r.URL.Path == "/apps/academic-research/users/u1/sessions/missing":
				http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
			case r.Method == http.MethodDelete:
				w.WriteHeader(http.StatusOK)
			default:
				_, _ = fmt.Fprintf(w, `{"id":"s1","appName":"academic-research","userId":"u1","state":{},"events":[]}`)
			}
		})
		defer srv.Close()
		ctx := context.Background()

		Convey("ListApps 返回 app 列表", func() {
			apps, err := client.ListApps(ctx)
			So(err, ShouldBeNil)
			So(apps, ShouldResemble, []string{"academic-research", "other"})
		})

		Convey("CreateSession 发送空 state", func() {
			session, err := client.CreateSession(ctx, "u1", "s1", nil)
			So(err, ShouldBeNil)
			So(session.ID, ShouldEqual, "s1")
			So(gotMethod, ShouldEqual, http.MethodPost)
			So(gotPath, ShouldEqual, "/apps/academic-research/users/u1/sessions/s1")
			So(gotBody["state"], ShouldResemble, map[string]any{})
		})

		Convey("GetSession 404 返回 ErrSessionNotFound", func() {
			_, err := client.GetSession(ctx, "u1", "missing")
			So(errors.Is(err, ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("GetOrCreateSession 查询失败时创建", func() {
			session, err := client.GetOrCreateSession(ctx, "u1", "missing")
			So(err, ShouldBeNil)
			So(gotMethod, ShouldEqual, http.MethodPost)
			So(session, ShouldNotBeNil)
		})

		Convey("GetOrCreateSession 空 id 时生成新 id", func() {
			session, err := client.GetOrCreateSession(ctx, "u1", "")
			So(err, ShouldBeNil)
			So(gotMethod, ShouldEqual, http.MethodGet)
			So(session.ID, ShouldEqual, "s1")
		})

		Convey("DeleteSession 成功", func() {
			So(client.DeleteSession(ctx, "u1", "s1"), ShouldBeNil)
			So(gotMethod, ShouldEqual, http.MethodDelete)
		})
	})
}

func TestClientRun(t *testing.T) {
	Convey("Run", t, func() {
		ctx := context.Background()

		Convey("请求体包含 app、用户、session 与消息", func() {
			var payload map[string]any
			var path string
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&payload)
				_, _ = w.Write([]byte(`[{"content":{"role":"model","parts":[{"text":"hi"}]}}]`))
			})
			defer srv.Close()

			events, err := client.Run(ctx, "u1", "s1", "hello")
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 1)
			So(path, ShouldEqual, "/run")
			So(payload["app_name"], ShouldEqual, "academic-research")
			So(payload["session_id"], ShouldEqual, "s1")
			So(payload, ShouldNotContainKey, "streaming")
			msg := payload["new_message"].(map[string]any)
			So(msg["role"], ShouldEqual, "user")
			So(msg["parts"], ShouldResemble, []any{map[string]any{"text": "hello"}})
		})

		Convey("单个对象被包装成列表", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"text":"single"}`))
			})
			defer srv.Close()

			events, err := client.Run(ctx, "u1", "s1", "hello")
			So(err, ShouldBeNil)
			So(ExtractText(events), ShouldEqual, "single")
		})

		Convey("无法识别的格式返回空列表", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`"just a string"`))
			})
			defer srv.Close()

			events, err := client.Run(ctx, "u1", "s1", "hello")
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)
		})

		Convey("404 返回 ErrServerNotFound", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})
			defer srv.Close()

			_, err := client.Run(ctx, "u1", "s1", "hello")
			So(err, ShouldEqual, ErrServerNotFound)
		})

		Convey("其他错误状态返回 StatusError", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("boom"))
			})
			defer srv.Close()

			_, err := client.Run(ctx, "u1", "s1", "hello")
			var se *StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.StatusCode, ShouldEqual, http.StatusInternalServerError)
			So(se.Body, ShouldEqual, "boom")
		})

		Convey("连接失败返回 ErrUnavailable", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()

			_, err := NewClient(Config{BaseURL: url}).Run(ctx, "u1", "s1", "hello")
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestClientRunSSE(t *testing.T) {
	Convey("RunSSE", t, func() {
		ctx := context.Background()

		Convey("逐行解析 data 事件并跳过坏行", func() {
			var payload map[string]any
			var path string
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&payload)
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hel\"}]}}\n\n"))
				_, _ = w.Write([]byte(": keep-alive\n"))
				_, _ = w.Write([]byte("data: {not json}\n\n"))
				_, _ = w.Write([]byte("data: {\"content\":{\"role\":\"model\",\"parts\":[\"lo\"]}}\n\n"))
			})
			defer srv.Close()

			var events []Event
			err := client.RunSSE(ctx, "u1", "s1", "hello", func(e Event) error {
				events = append(events, e)
				return nil
			})
			So(err, ShouldBeNil)
			So(events, ShouldHaveLength, 2)
			So(ExtractText(events), ShouldEqual, "Hello")
			So(path, ShouldEqual, "/run_sse")
			So(payload["streaming"], ShouldEqual, true)
		})

		Convey("回调返回错误时停止", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}\n\n"))
			})
			defer srv.Close()

			stop := errors.New("stop")
			count := 0
			err := client.RunSSE(ctx, "u1", "s1", "hello", func(e Event) error {
				count++
				return stop
			})
			So(err, ShouldEqual, stop)
			So(count, ShouldEqual, 1)
		})

		Convey("持续产出事件的长流不受 StreamTimeout 限制", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				for i := 0; i < 7; i++ {
					_, _ = fmt.Fprintf(w, "data: {\"text\":\"%d\"}\n\n", i)
					flusher.Flush()
					select {
					case <-time.After(150 * time.Millisecond):
					case <-r.Context().Done():
						return
					}
				}
			}))
			defer srv.Close()
			client := NewClient(Config{BaseURL: srv.URL, StreamTimeout: 500 * time.Millisecond})

			start := time.Now()
			count := 0
			err := client.RunSSE(ctx, "u1", "s1", "hello", func(e Event) error {
				count++
				return nil
			})
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 7)
			So(time.Since(start) > 500*time.Millisecond, ShouldBeTrue)
		})

		Convey("空闲超过 StreamTimeout 返回 ErrStreamIdle 并保留已读事件", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {\"text\":\"partial\"}\n\n"))
				w.(http.Flusher).Flush()
				select {
				case <-time.After(5 * time.Second):
				case <-r.Context().Done():
				}
			}))
			defer srv.Close()
			client := NewClient(Config{BaseURL: srv.URL, StreamTimeout: 200 * time.Millisecond})

			var events []Event
			err := client.RunSSE(ctx, "u1", "s1", "hello", func(e Event) error {
				events = append(events, e)
				return nil
			})
			So(errors.Is(err, ErrStreamIdle), ShouldBeTrue)
			So(ExtractText(events), ShouldEqual, "partial")
		})

		Convey("错误状态码直接返回", func() {
			srv, client := newTestServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})
			defer srv.Close()

			err := client.RunSSE(ctx, "u1", "s1", "hello", func(e Event) error { return nil })
			var se *StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.StatusCode, ShouldEqual, http.StatusBadGateway)
		})
	})
}
