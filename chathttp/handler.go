// Package chathttp is the HTTP host for the widget chat stack. It exposes
// thread messaging, action dispatch, an SSE event stream per thread, and
// the advertised widget/action capability listings.
package chathttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/chatware/chatwidgets-go/auth"
	"github.com/chatware/chatwidgets-go/broker"
	"github.com/chatware/chatwidgets-go/chatclient"
	"github.com/chatware/chatwidgets-go/extract"
	"github.com/chatware/chatwidgets-go/internal/logctx"
	"github.com/chatware/chatwidgets-go/threads"
	"github.com/chatware/chatwidgets-go/widget"
	"github.com/chatware/chatwidgets-go/widgetservice"
)

var (
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// Handler serves the chat API. Construct with New; it implements
// http.Handler.
type Handler struct {
	log         *slog.Logger
	authn       auth.Authenticator
	store       threads.Store
	events      broker.Broker
	chat        chatclient.Client
	codec       *widget.Codec
	parser      *extract.Parser
	actions     *widgetservice.ActionsContainer
	descriptors *widgetservice.DescriptorProvider
	realm       string

	mux *http.ServeMux
}

// Option configures the handler.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	authn   auth.Authenticator
	codec   *widget.Codec
	actions *widgetservice.ActionsContainer
	tmpls   *widget.TemplateRegistry
	realm   string
}

// WithLogger sets the base logger. Records are enriched with
// request-scoped context via logctx.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) { c.logger = log }
}

// WithAuthenticator requires bearer authentication on every route.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *config) { c.authn = a }
}

// WithCodec sets the widget codec, carrying any custom registrations.
func WithCodec(codec *widget.Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithActions sets the action container dispatched against.
func WithActions(actions *widgetservice.ActionsContainer) Option {
	return func(c *config) { c.actions = actions }
}

// WithTemplates sets the template registry advertised to the model.
func WithTemplates(tmpls *widget.TemplateRegistry) Option {
	return func(c *config) { c.tmpls = tmpls }
}

// WithRealm sets the realm used in Bearer challenges.
func WithRealm(realm string) Option {
	return func(c *config) { c.realm = realm }
}

// New constructs the chat handler over its collaborators. store, events and
// chat are required; everything else has defaults.
func New(store threads.Store, events broker.Broker, chat chatclient.Client, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("chathttp: thread store is required")
	}
	if events == nil {
		return nil, fmt.Errorf("chathttp: broker is required")
	}
	if chat == nil {
		return nil, fmt.Errorf("chathttp: chat client is required")
	}
	cfg := &config{logger: slog.Default(), realm: "chatwidgets"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.codec == nil {
		cfg.codec = widget.NewCodec()
	}
	if cfg.actions == nil {
		cfg.actions = widgetservice.NewActionsContainer()
	}

	h := &Handler{
		log:         slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		authn:       cfg.authn,
		store:       store,
		events:      events,
		chat:        chat,
		codec:       cfg.codec,
		actions:     cfg.actions,
		descriptors: widgetservice.NewDescriptorProvider(cfg.tmpls),
		realm:       cfg.realm,
	}
	h.parser = extract.NewParser(cfg.codec, extract.WithLogger(h.log))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads/{thread}/messages", h.handlePostMessage)
	mux.HandleFunc("POST /v1/threads/{thread}/actions", h.handlePostAction)
	mux.HandleFunc("GET /v1/threads/{thread}/events", h.handleEvents)
	mux.HandleFunc("GET /v1/threads/{thread}", h.handleGetThread)
	mux.HandleFunc("DELETE /v1/threads/{thread}", h.handleDeleteThread)
	mux.HandleFunc("GET /v1/widgets", h.handleListWidgets)
	mux.HandleFunc("GET /v1/actions", h.handleListActions)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// --- Auth ---

func bearerChallenge(realm string, params map[string]string) string {
	pieces := []string{fmt.Sprintf("realm=%q", realm)}
	for k, v := range params {
		pieces = append(pieces, fmt.Sprintf("%s=%q", k, v))
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// authenticate resolves the request principal. With no authenticator
// configured every request passes with a nil user.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.UserInfo, bool) {
	if h.authn == nil {
		return nil, true
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		w.Header().Set("WWW-Authenticate", bearerChallenge(h.realm, nil))
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) {
		w.Header().Set("WWW-Authenticate", bearerChallenge(h.realm, map[string]string{"error": "invalid_request"}))
		http.Error(w, "malformed authorization header", http.StatusUnauthorized)
		return nil, false
	}
	ui, err := h.authn.CheckAuthentication(r.Context(), strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		if errors.Is(err, auth.ErrInsufficientScope) {
			w.Header().Set("WWW-Authenticate", bearerChallenge(h.realm, map[string]string{"error": "insufficient_scope"}))
			http.Error(w, "insufficient scope", http.StatusForbidden)
			return nil, false
		}
		w.Header().Set("WWW-Authenticate", bearerChallenge(h.realm, map[string]string{"error": "invalid_token"}))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return ui, true
}

func userID(ui auth.UserInfo) string {
	if ui == nil {
		return ""
	}
	return ui.UserID()
}

// --- Messages ---

// MessageRequest is the POST /messages body.
type MessageRequest struct {
	Text string `json:"text"`
}

// TurnResponse is the wire form of a stored turn.
type TurnResponse struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"threadId"`
	Role      threads.Role      `json:"role"`
	Text      string            `json:"text"`
	Widgets   []json.RawMessage `json:"widgets,omitempty"`
	CreatedAt string            `json:"createdAt"`
}

func toTurnResponse(turn threads.Turn) TurnResponse {
	return TurnResponse{
		ID:        turn.ID,
		ThreadID:  turn.ThreadID,
		Role:      turn.Role,
		Text:      turn.Text,
		Widgets:   turn.Widgets,
		CreatedAt: turn.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ui, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	threadID := r.PathValue("thread")
	ctx := logctx.WithThreadData(r.Context(), &logctx.ThreadData{ThreadID: threadID, UserID: userID(ui)})

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	history, err := h.store.ListTurns(ctx, threadID)
	if err != nil {
		h.log.ErrorContext(ctx, "history.list.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	userTurn := threads.Turn{ThreadID: threadID, Role: threads.RoleUser, Text: req.Text}
	if err := h.store.AppendTurn(ctx, &userTurn); err != nil {
		h.log.ErrorContext(ctx, "turn.append.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.publishTurn(ctx, &userTurn)

	reply, err := h.chat.Generate(ctx, h.buildMessages(history, req.Text))
	if err != nil {
		h.log.ErrorContext(ctx, "chat.generate.fail", slog.String("err", err.Error()))
		http.Error(w, "generation failed", http.StatusBadGateway)
		return
	}

	assistantTurn, err := h.appendAssistantTurn(ctx, threadID, reply)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toTurnResponse(*assistantTurn))
}

// buildMessages composes the model conversation: system instructions first,
// then stored history, then the new user text.
func (h *Handler) buildMessages(history []threads.Turn, text string) []chatclient.Message {
	messages := make([]chatclient.Message, 0, len(history)+2)
	messages = append(messages, chatclient.Message{
		Role:    chatclient.RoleSystem,
		Content: widgetservice.BuildInstructions(h.descriptors, h.actions),
	})
	for _, turn := range history {
		role := chatclient.RoleUser
		if turn.Role == threads.RoleAssistant {
			role = chatclient.RoleAssistant
		}
		messages = append(messages, chatclient.Message{Role: role, Content: turn.Text})
	}
	return append(messages, chatclient.Message{Role: chatclient.RoleUser, Content: text})
}

// appendAssistantTurn extracts widgets from raw model output, stores the
// clean turn, and publishes it.
func (h *Handler) appendAssistantTurn(ctx context.Context, threadID, raw string) (*threads.Turn, error) {
	clean, widgets := h.parser.Parse(raw)
	fragments, err := threads.EncodeWidgets(h.codec, widgets)
	if err != nil {
		h.log.ErrorContext(ctx, "widgets.encode.fail", slog.String("err", err.Error()))
		return nil, err
	}
	turn := threads.Turn{
		ThreadID: threadID,
		Role:     threads.RoleAssistant,
		Text:     clean,
		Widgets:  fragments,
	}
	if err := h.store.AppendTurn(ctx, &turn); err != nil {
		h.log.ErrorContext(ctx, "turn.append.fail", slog.String("err", err.Error()))
		return nil, err
	}
	h.publishTurn(ctx, &turn)
	threads.ReleaseWidgets(widgets)
	return &turn, nil
}

func (h *Handler) publishTurn(ctx context.Context, turn *threads.Turn) {
	data, err := json.Marshal(toTurnResponse(*turn))
	if err != nil {
		h.log.ErrorContext(ctx, "event.encode.fail", slog.String("err", err.Error()))
		return
	}
	if _, err := h.events.Publish(ctx, turn.ThreadID, broker.Event{
		Kind:     broker.EventTurnCreated,
		ThreadID: turn.ThreadID,
		TurnID:   turn.ID,
		Data:     data,
	}); err != nil {
		// Delivery is best-effort; the turn is already durable.
		h.log.WarnContext(ctx, "event.publish.fail", slog.String("err", err.Error()))
	}
}

// --- Actions ---

func (h *Handler) handlePostAction(w http.ResponseWriter, r *http.Request) {
	ui, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	threadID := r.PathValue("thread")
	ctx := logctx.WithThreadData(r.Context(), &logctx.ThreadData{ThreadID: threadID, UserID: userID(ui)})

	var req widgetservice.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}
	req.ThreadID = threadID
	ctx = logctx.WithActionData(ctx, &logctx.ActionData{Name: req.Action})

	res, handled, err := h.actions.Dispatch(ctx, &req)
	if err != nil {
		h.log.ErrorContext(ctx, "action.dispatch.fail", slog.String("err", err.Error()))
		http.Error(w, "action failed", http.StatusUnprocessableEntity)
		return
	}
	if !handled {
		// No handler registered: acknowledge generically rather than
		// failing the interaction.
		h.log.InfoContext(ctx, "action.unhandled")
		res = &widgetservice.ActionResult{Message: fmt.Sprintf("Received %q.", req.Action)}
	} else if res == nil {
		// A handler may return (nil, nil) to signal "done, nothing to
		// say"; treat that as an empty result.
		res = &widgetservice.ActionResult{}
	}

	fragments, err := threads.EncodeWidgets(h.codec, res.Widgets)
	if err != nil {
		h.log.ErrorContext(ctx, "widgets.encode.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	turn := threads.Turn{
		ThreadID: threadID,
		Role:     threads.RoleAssistant,
		Text:     res.Message,
		Widgets:  fragments,
	}
	if err := h.store.AppendTurn(ctx, &turn); err != nil {
		h.log.ErrorContext(ctx, "turn.append.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data, err := json.Marshal(toTurnResponse(turn))
	if err == nil {
		if _, err := h.events.Publish(ctx, threadID, broker.Event{
			Kind:     broker.EventActionResult,
			ThreadID: threadID,
			TurnID:   turn.ID,
			Data:     data,
		}); err != nil {
			h.log.WarnContext(ctx, "event.publish.fail", slog.String("err", err.Error()))
		}
	}
	threads.ReleaseWidgets(res.Widgets)

	writeJSON(w, http.StatusOK, toTurnResponse(turn))
}

// --- Thread reads ---

func (h *Handler) handleGetThread(w http.ResponseWriter, r *http.Request) {
	ui, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	threadID := r.PathValue("thread")
	ctx := logctx.WithThreadData(r.Context(), &logctx.ThreadData{ThreadID: threadID, UserID: userID(ui)})

	history, err := h.store.ListTurns(ctx, threadID)
	if err != nil {
		h.log.ErrorContext(ctx, "history.list.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]TurnResponse, 0, len(history))
	for _, turn := range history {
		out = append(out, toTurnResponse(turn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"threadId": threadID, "turns": out})
}

func (h *Handler) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	ui, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	threadID := r.PathValue("thread")
	ctx := logctx.WithThreadData(r.Context(), &logctx.ThreadData{ThreadID: threadID, UserID: userID(ui)})

	if err := h.store.DeleteThread(ctx, threadID); err != nil {
		h.log.ErrorContext(ctx, "thread.delete.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.events.Cleanup(ctx, threadID); err != nil {
		h.log.WarnContext(ctx, "broker.cleanup.fail", slog.String("err", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Capability listings ---

func (h *Handler) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"widgets": h.descriptors.Descriptors()})
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": h.actions.All()})
}

// --- SSE ---

// lockedWriteFlusher serializes writes/flushes and refuses them once ctx is
// canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ui, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		http.Error(w, "accept header must allow text/event-stream", http.StatusNotAcceptable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(r.Context(), "sse.flusher.missing")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	threadID := r.PathValue("thread")
	ctx := logctx.WithThreadData(r.Context(), &logctx.ThreadData{ThreadID: threadID, UserID: userID(ui)})

	stream, err := h.events.Subscribe(ctx, threadID, r.Header.Get("Last-Event-ID"))
	if err != nil {
		h.log.ErrorContext(ctx, "sse.subscribe.fail", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	wf := &lockedWriteFlusher{Writer: w, Flusher: flusher, ctx: ctx}
	wf.Flush()

	for {
		envelope, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			h.log.WarnContext(ctx, "sse.next.fail", slog.String("err", err.Error()))
			return
		}
		if err := writeSSEEvent(wf, envelope.ID, envelope.Data); err != nil {
			return
		}
	}
}

// writeSSEEvent writes one SSE frame and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, eventID string, payload []byte) error {
	if eventID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
