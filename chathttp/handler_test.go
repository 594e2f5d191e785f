package chathttp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatware/chatwidgets-go/auth"
	"github.com/chatware/chatwidgets-go/broker/memorybroker"
	"github.com/chatware/chatwidgets-go/chatclient"
	"github.com/chatware/chatwidgets-go/threads/memoryhost"
	"github.com/chatware/chatwidgets-go/widgetservice"
)

func newTestHandler(t *testing.T, replies []string, opts ...Option) (*Handler, *chatclient.Scripted) {
	t.Helper()
	chat := chatclient.NewScripted(replies...)
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	h, err := New(memoryhost.New(), memorybroker.New(), chat, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return h, chat
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(string(b)))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeTurn(t *testing.T, resp *http.Response) TurnResponse {
	t.Helper()
	defer resp.Body.Close()
	var turn TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatal(err)
	}
	return turn
}

func TestPostMessageExtractsWidgets(t *testing.T) {
	h, chat := newTestHandler(t, []string{
		`Pick a color. <widget>{"type":"dropdown","label":"Color","action":"pick_color","options":["red","blue"]}</widget>`,
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	turn := decodeTurn(t, resp)

	if turn.Role != "assistant" {
		t.Errorf("role = %s", turn.Role)
	}
	if turn.Text != "Pick a color." {
		t.Errorf("text = %q", turn.Text)
	}
	if len(turn.Widgets) != 1 {
		t.Fatalf("widgets = %d", len(turn.Widgets))
	}
	var frag struct {
		Type    string   `json:"type"`
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(turn.Widgets[0], &frag); err != nil {
		t.Fatal(err)
	}
	if frag.Type != "dropdown" || len(frag.Options) != 2 {
		t.Errorf("fragment = %+v", frag)
	}

	// The model saw the system instructions and the user text.
	calls := chat.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0][0].Role != chatclient.RoleSystem || !strings.Contains(calls[0][0].Content, "<widget>") {
		t.Errorf("system message = %+v", calls[0][0])
	}
	if last := calls[0][len(calls[0])-1]; last.Role != chatclient.RoleUser || last.Content != "hi" {
		t.Errorf("user message = %+v", last)
	}
}

func TestPostMessageCarriesHistory(t *testing.T) {
	h, chat := newTestHandler(t, []string{"first reply", "second reply"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "one"}).Body.Close()
	postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "two"}).Body.Close()

	calls := chat.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	// Second call: system, "one", "first reply", "two".
	second := calls[1]
	if len(second) != 4 {
		t.Fatalf("messages = %d", len(second))
	}
	if second[1].Content != "one" || second[2].Content != "first reply" || second[2].Role != chatclient.RoleAssistant {
		t.Errorf("history = %+v", second[1:3])
	}
}

func TestPostMessageValidation(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank text status = %d", resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/v1/threads/t1/messages", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body status = %d", resp.StatusCode)
	}
}

func TestPostActionDispatch(t *testing.T) {
	type pickArgs struct {
		Color string `json:"color"`
	}
	actions := widgetservice.NewActionsContainer(
		widgetservice.NewAction("pick_color", func(ctx context.Context, req *widgetservice.ActionRequest, args pickArgs) (*widgetservice.ActionResult, error) {
			return &widgetservice.ActionResult{Message: "You picked " + args.Color + "."}, nil
		}),
	)
	h, _ := newTestHandler(t, nil, WithActions(actions))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/actions", map[string]any{
		"action":  "pick_color",
		"payload": map[string]string{"color": "blue"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	turn := decodeTurn(t, resp)
	if turn.Text != "You picked blue." {
		t.Errorf("text = %q", turn.Text)
	}
	if turn.Role != "assistant" {
		t.Errorf("role = %s", turn.Role)
	}
}

func TestPostActionUnhandledAcknowledges(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/actions", map[string]any{"action": "mystery"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	turn := decodeTurn(t, resp)
	if !strings.Contains(turn.Text, "mystery") {
		t.Errorf("ack text = %q", turn.Text)
	}
}

func TestPostActionNilResult(t *testing.T) {
	actions := widgetservice.NewActionsContainer(
		widgetservice.NewAction("fire_and_forget", func(ctx context.Context, req *widgetservice.ActionRequest, args struct{}) (*widgetservice.ActionResult, error) {
			return nil, nil
		}),
	)
	h, _ := newTestHandler(t, nil, WithActions(actions))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/actions", map[string]any{"action": "fire_and_forget"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	turn := decodeTurn(t, resp)
	if turn.Text != "" || len(turn.Widgets) != 0 {
		t.Errorf("expected empty result turn, got %+v", turn)
	}
}

func TestPostActionHandlerError(t *testing.T) {
	actions := widgetservice.NewActionsContainer(
		widgetservice.NewAction("boom", func(ctx context.Context, req *widgetservice.ActionRequest, args struct{}) (*widgetservice.ActionResult, error) {
			return nil, fmt.Errorf("no")
		}),
	)
	h, _ := newTestHandler(t, nil, WithActions(actions))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/actions", map[string]any{"action": "boom"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetThreadAndDelete(t *testing.T) {
	h, _ := newTestHandler(t, []string{"hello there"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "hi"}).Body.Close()

	resp, err := http.Get(srv.URL + "/v1/threads/t1")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		ThreadID string         `json:"threadId"`
		Turns    []TurnResponse `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(listing.Turns) != 2 {
		t.Fatalf("turns = %d", len(listing.Turns))
	}
	if listing.Turns[0].Role != "user" || listing.Turns[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", listing.Turns[0].Role, listing.Turns[1].Role)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/threads/t1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/threads/t1")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(listing.Turns) != 0 {
		t.Errorf("turns after delete = %d", len(listing.Turns))
	}
}

func TestCapabilityListings(t *testing.T) {
	actions := widgetservice.NewActionsContainer(
		widgetservice.NewAction("pick_color", func(ctx context.Context, req *widgetservice.ActionRequest, args struct {
			Color string `json:"color"`
		}) (*widgetservice.ActionResult, error) {
			return &widgetservice.ActionResult{}, nil
		}),
	)
	h, _ := newTestHandler(t, nil, WithActions(actions))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/widgets")
	if err != nil {
		t.Fatal(err)
	}
	var widgets struct {
		Widgets []widgetservice.ToolDescriptor `json:"widgets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&widgets); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(widgets.Widgets) != 15 {
		t.Errorf("widget descriptors = %d", len(widgets.Widgets))
	}

	resp, err = http.Get(srv.URL + "/v1/actions")
	if err != nil {
		t.Fatal(err)
	}
	var acts struct {
		Actions []widgetservice.ActionMetadata `json:"actions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acts); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(acts.Actions) != 1 || acts.Actions[0].Name != "pick_color" {
		t.Errorf("actions = %+v", acts.Actions)
	}
}

// readSSEFrame reads one "id:"/"data:" frame from the stream. ok is false
// once the stream ends.
func readSSEFrame(br *bufio.Reader) (id, data string, ok bool) {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", "", false
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return id, data, true
		}
	}
}

func TestEventStreamDeliversTurns(t *testing.T) {
	h, _ := newTestHandler(t, []string{"streamed reply"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads/t1/events", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %s", ct)
	}

	type frame struct{ id, data string }
	frames := make(chan frame, 4)
	go func() {
		br := bufio.NewReader(resp.Body)
		for {
			id, data, ok := readSSEFrame(br)
			if !ok {
				return
			}
			frames <- frame{id, data}
		}
	}()

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)
	postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "hi"}).Body.Close()

	// The user turn and the assistant turn each produce an event.
	var got []frame
	for len(got) < 2 {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d frames", len(got))
		}
	}
	if got[0].id == "" || got[1].id == "" {
		t.Errorf("missing event IDs: %+v", got)
	}

	var ev struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(got[1].data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Role != "assistant" || ev.Text != "streamed reply" {
		t.Errorf("assistant event = %+v", ev)
	}
}

func TestEventStreamRequiresAcceptHeader(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/threads/t1/events", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	secret := []byte("dev-secret")
	authn, err := auth.NewHMAC(secret, "https://dev.local", "chatwidgets")
	if err != nil {
		t.Fatal(err)
	}
	h, _ := newTestHandler(t, []string{"ok"}, WithAuthenticator(authn))
	srv := httptest.NewServer(h)
	defer srv.Close()

	// No token.
	resp := postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	if ch := resp.Header.Get("WWW-Authenticate"); !strings.HasPrefix(ch, "Bearer ") {
		t.Errorf("challenge = %q", ch)
	}

	// Garbage token.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/threads/t1/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", resp.StatusCode)
	}

	// Valid token.
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "https://dev.local",
		"aud": "chatwidgets",
		"sub": "tester",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/threads/t1/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token status = %d", resp.StatusCode)
	}
}

func TestGenerateFailureIsBadGateway(t *testing.T) {
	// A scripted client with no replies errors on the first call.
	h, _ := newTestHandler(t, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postJSON(t, srv, "/v1/threads/t1/messages", MessageRequest{Text: "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
