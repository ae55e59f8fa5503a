package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer() *Server {
	return New(Options{Logger: logging.New(io.Discard, "devserver")})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestChatRoutes(t *testing.T) {
	s := newTestServer()
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/chats", `{"title":"New Chat"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /chats = %d: %s", w.Code, w.Body)
	}
	var conv api.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatal(err)
	}
	if conv.ID == "" || conv.Title != "New Chat" || conv.CreatedAt.IsZero() {
		t.Errorf("created %+v", conv)
	}

	w = do(t, h, http.MethodGet, "/chats", "")
	var list []api.Conversation
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != conv.ID {
		t.Errorf("GET /chats = %s", w.Body)
	}

	w = do(t, h, http.MethodPost, "/chats/"+conv.ID+"/ask", `{"message":"What is the weather in Paris today?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("ask = %d: %s", w.Code, w.Body)
	}
	var reply api.Message
	json.Unmarshal(w.Body.Bytes(), &reply)
	if reply.Sender != api.SenderAI || reply.Content != "You said: What is the weather in Paris today? (turn 1)" {
		t.Errorf("reply = %+v", reply)
	}

	w = do(t, h, http.MethodGet, "/chats/"+conv.ID+"/messages", "")
	var msgs []api.Message
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 2 || msgs[0].Sender != api.SenderUser || msgs[1].ID != reply.ID {
		t.Errorf("messages = %+v", msgs)
	}

	w = do(t, h, http.MethodGet, "/chats/"+conv.ID, "")
	json.Unmarshal(w.Body.Bytes(), &conv)
	if conv.Title != "What is the weather in Paris today?" {
		t.Errorf("inferred title = %q", conv.Title)
	}
}

func TestNotFound(t *testing.T) {
	h := newTestServer().Handler()
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/chats/missing", ""},
		{http.MethodGet, "/chats/missing/messages", ""},
		{http.MethodPost, "/chats/missing/ask", `{"message":"hi"}`},
		{http.MethodGet, "/chats/missing/ask/stream?message=hi", ""},
		{http.MethodGet, "/chats/missing/ask/stream-raw?message=hi", ""},
		{http.MethodPost, "/chats/missing/ask/stream-raw-post", `{"message":"hi"}`},
	} {
		if w := do(t, h, tc.method, tc.path, tc.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, w.Code)
		}
	}
}

func TestStreamRoutes(t *testing.T) {
	s := newTestServer()
	h := s.Handler()
	conv := s.Store().Create("")

	t.Run("event stream", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/chats/"+conv.ID+"/ask/stream?message=Hi+there", "")
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			t.Errorf("Content-Type = %q", ct)
		}
		body := w.Body.String()
		if !strings.Contains(body, `"text":"You `) {
			t.Errorf("body missing text frames: %q", body)
		}
		if !strings.HasSuffix(strings.TrimSpace(body), `data:{"done":true}`) {
			t.Errorf("body does not end with done frame: %q", body)
		}
	})

	t.Run("raw post", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/chats/"+conv.ID+"/ask/stream-raw-post", `{"message":"héllo wörld"}`)
		if got, want := w.Body.String(), "You said: héllo wörld (turn 2)"; got != want {
			t.Errorf("body = %q, want %q", got, want)
		}
	})

	t.Run("missing message", func(t *testing.T) {
		if w := do(t, h, http.MethodGet, "/chats/"+conv.ID+"/ask/stream-raw", ""); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if w := do(t, h, http.MethodPost, "/chats/"+conv.ID+"/ask", `{}`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	msgs, _ := s.Store().Messages(conv.ID)
	if len(msgs) != 4 {
		t.Errorf("stored %d messages, want 4", len(msgs))
	}
}

func TestInferTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello", "Hello"},
		{"  spaced   out\nsecond line", "spaced out"},
		{"Tell me everything you know about the history of the Roman empire", "Tell me everything you know about the..."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := InferTitle(tt.in); got != tt.want {
			t.Errorf("InferTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitWords(t *testing.T) {
	in := "You said:  héllo\nwörld "
	pieces := splitWords(in)
	var b bytes.Buffer
	for _, p := range pieces {
		b.WriteString(p)
	}
	if b.String() != in {
		t.Errorf("pieces %q do not rebuild input", pieces)
	}
	if len(pieces) != 4 {
		t.Errorf("len(pieces) = %d, want 4: %q", len(pieces), pieces)
	}
}

func TestCreateKeepsTitle(t *testing.T) {
	s := newTestServer()
	conv := s.Store().Create("Pinned")
	s.Store().AddMessage(conv.ID, api.SenderUser, "something else")
	got, _ := s.Store().Get(conv.ID)
	if got.Title != "Pinned" {
		t.Errorf("Title = %q, explicit titles must not be replaced", got.Title)
	}
}
