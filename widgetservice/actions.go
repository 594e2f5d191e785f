package widgetservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/chatware/chatwidgets-go/widget"
)

// ActionRequest carries a user-triggered action from the host to a handler.
type ActionRequest struct {
	// Action is the registered action name, matching the widget's action
	// field that triggered it.
	Action string `json:"action"`
	// ThreadID identifies the conversation thread the action belongs to.
	ThreadID string `json:"threadId,omitempty"`
	// Payload is the raw JSON payload submitted alongside the action.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActionResult is what a handler produces: a textual reply plus any widgets
// to render with it.
type ActionResult struct {
	Message string
	Widgets []widget.Widget
}

// ActionHandler processes a dispatched action.
type ActionHandler func(ctx context.Context, req *ActionRequest) (*ActionResult, error)

// ActionMetadata declares an action's name and expected payload shape. The
// payload schema is advertised to the model so it can instruct the client
// what to submit; PayloadType records the Go shape for hosts that want to
// decode eagerly.
type ActionMetadata struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	PayloadSchema widget.Schema `json:"payloadSchema"`

	PayloadType reflect.Type `json:"-"`
}

// StaticAction pairs action metadata with its handler. A nil handler
// registers the metadata alone; dispatch then depends on a descriptor
// binding resolved through a HandlerContainer.
type StaticAction struct {
	Metadata ActionMetadata
	Handler  ActionHandler
}

// HandlerContainer produces handlers by descriptor, in the manner of a
// dependency-injection container. Resolve returns nil when the descriptor
// is unknown; the container never errors.
type HandlerContainer interface {
	Resolve(descriptor string) ActionHandler
}

// HandlerContainerFunc adapts a function to HandlerContainer.
type HandlerContainerFunc func(descriptor string) ActionHandler

func (f HandlerContainerFunc) Resolve(descriptor string) ActionHandler { return f(descriptor) }

// ActionOption configures NewAction behavior.
type ActionOption func(*actionConfig)

type actionConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithActionDescription sets the description advertised for the action.
func WithActionDescription(desc string) ActionOption {
	return func(c *actionConfig) { c.description = desc }
}

// WithActionAllowAdditionalProperties controls whether unknown payload
// fields are tolerated. When false (the default) the advertised schema sets
// additionalProperties=false and runtime decoding rejects unknown fields.
func WithActionAllowAdditionalProperties(allow bool) ActionOption {
	return func(c *actionConfig) { c.allowAdditionalProperties = allow }
}

// NewAction builds a StaticAction from a typed payload struct A: the payload
// schema is reflected from A, and the handler decodes the incoming payload
// into A before invoking fn. Metadata and handler travel together, so a
// single Register call installs both atomically.
func NewAction[A any](name string, fn func(ctx context.Context, req *ActionRequest, args A) (*ActionResult, error), opts ...ActionOption) StaticAction {
	cfg := actionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	meta := ActionMetadata{
		Name:          name,
		Description:   cfg.description,
		PayloadSchema: reflectSchema(new(A), cfg.allowAdditionalProperties),
		PayloadType:   reflect.TypeOf((*A)(nil)).Elem(),
	}
	handler := func(ctx context.Context, req *ActionRequest) (*ActionResult, error) {
		var a A
		if len(req.Payload) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Payload, &a); err != nil {
					return nil, fmt.Errorf("action %s: invalid payload: %w", name, err)
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Payload))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return nil, fmt.Errorf("action %s: invalid payload: %w", name, err)
				}
			}
		}
		return fn(ctx, req, a)
	}
	return StaticAction{Metadata: meta, Handler: handler}
}

// ActionsContainer owns a mutable, threadsafe set of action declarations and
// their handlers. Registration is configuration-time work: an empty action
// name fails immediately rather than surfacing later as an undispatchable
// action. Re-registering an existing name overwrites it, last writer wins.
//
// ActionsContainer embeds a ChangeNotifier so hosts can re-advertise the
// action set when it changes.
type ActionsContainer struct {
	mu       sync.RWMutex
	metas    map[string]ActionMetadata
	order    []string
	handlers map[string]ActionHandler
	bindings map[string]string // action name -> handler descriptor
	resolver HandlerContainer

	notifier ChangeNotifier
}

// NewActionsContainer constructs a container with the given definitions.
// Definitions with an empty name panic: a malformed registration at
// construction time is a programming error, not a runtime condition.
func NewActionsContainer(defs ...StaticAction) *ActionsContainer {
	c := &ActionsContainer{
		metas:    make(map[string]ActionMetadata),
		handlers: make(map[string]ActionHandler),
		bindings: make(map[string]string),
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			panic(err)
		}
	}
	return c
}

// SetResolver installs the container used to resolve descriptor bindings.
func (c *ActionsContainer) SetResolver(hc HandlerContainer) {
	c.mu.Lock()
	c.resolver = hc
	c.mu.Unlock()
}

// Register installs an action's metadata and handler under one lock. An
// empty name is rejected. Re-registering a name replaces its metadata and
// handler and clears any descriptor binding; the action keeps its original
// position in listing order.
func (c *ActionsContainer) Register(def StaticAction) error {
	name := def.Metadata.Name
	if name == "" {
		return fmt.Errorf("widgetservice: action registration requires a name")
	}
	c.mu.Lock()
	if _, exists := c.metas[name]; !exists {
		c.order = append(c.order, name)
	}
	c.metas[name] = def.Metadata
	delete(c.bindings, name)
	if def.Handler != nil {
		c.handlers[name] = def.Handler
	} else {
		delete(c.handlers, name)
	}
	c.mu.Unlock()

	go func() { _ = c.notifier.Notify(context.Background()) }()
	return nil
}

// Bind registers action metadata whose handler is resolved lazily through
// the container's HandlerContainer by descriptor.
func (c *ActionsContainer) Bind(meta ActionMetadata, descriptor string) error {
	if meta.Name == "" {
		return fmt.Errorf("widgetservice: action registration requires a name")
	}
	if descriptor == "" {
		return fmt.Errorf("widgetservice: action %s: empty handler descriptor", meta.Name)
	}
	c.mu.Lock()
	if _, exists := c.metas[meta.Name]; !exists {
		c.order = append(c.order, meta.Name)
	}
	c.metas[meta.Name] = meta
	delete(c.handlers, meta.Name)
	c.bindings[meta.Name] = descriptor
	c.mu.Unlock()

	go func() { _ = c.notifier.Notify(context.Background()) }()
	return nil
}

// Remove deletes an action by name. Returns true if something was removed.
func (c *ActionsContainer) Remove(name string) bool {
	c.mu.Lock()
	_, existed := c.metas[name]
	if existed {
		delete(c.metas, name)
		delete(c.handlers, name)
		delete(c.bindings, name)
		n := 0
		for _, o := range c.order {
			if o == name {
				continue
			}
			c.order[n] = o
			n++
		}
		c.order = c.order[:n]
	}
	c.mu.Unlock()
	if existed {
		go func() { _ = c.notifier.Notify(context.Background()) }()
	}
	return existed
}

// Get returns the metadata registered under a name.
func (c *ActionsContainer) Get(name string) (ActionMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.metas[name]
	return meta, ok
}

// All returns every action's metadata in registration order.
func (c *ActionsContainer) All() []ActionMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ActionMetadata, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.metas[name])
	}
	return out
}

// resolveHandler finds the handler for an action: a directly registered
// handler wins; otherwise a descriptor binding is resolved through the
// installed HandlerContainer. A nil return means no handler is available,
// which is a degraded condition rather than an error.
func (c *ActionsContainer) resolveHandler(name string) ActionHandler {
	c.mu.RLock()
	h := c.handlers[name]
	descriptor, bound := c.bindings[name]
	resolver := c.resolver
	c.mu.RUnlock()
	if h != nil {
		return h
	}
	if bound && resolver != nil {
		return resolver.Resolve(descriptor)
	}
	return nil
}

// Dispatch routes a request to the handler for its action name. ok reports
// whether a handler was found; when it is false the host should fall back
// to a generic acknowledgement instead of failing the request. err carries
// only handler and payload failures.
func (c *ActionsContainer) Dispatch(ctx context.Context, req *ActionRequest) (res *ActionResult, ok bool, err error) {
	if req == nil || req.Action == "" {
		return nil, false, fmt.Errorf("widgetservice: dispatch requires an action name")
	}
	h := c.resolveHandler(req.Action)
	if h == nil {
		return nil, false, nil
	}
	res, err = h(ctx, req)
	return res, true, err
}

// Subscriber returns a channel signalled whenever the action set changes.
func (c *ActionsContainer) Subscriber() <-chan struct{} {
	return c.notifier.Subscriber()
}
