package widgetservice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatware/chatwidgets-go/widget"
)

// TemplateDir loads representative widget instances from *.json files in an
// OS directory into a template registry, and optionally watches the
// directory so edits land without a restart. Each file holds one widget
// fragment; the discriminator comes from the fragment itself.
//
// Files that fail to decode are logged and skipped: a broken template must
// not take down the template set it sits next to.
type TemplateDir struct {
	dir       string
	codec     *widget.Codec
	templates *widget.TemplateRegistry
	log       *slog.Logger

	debounce time.Duration
	watching atomic.Bool
	notifier ChangeNotifier
}

// TemplateDirOption configures a TemplateDir.
type TemplateDirOption func(*TemplateDir)

// WithTemplateLogger sets the logger for per-file load diagnostics.
func WithTemplateLogger(log *slog.Logger) TemplateDirOption {
	return func(d *TemplateDir) { d.log = log }
}

// WithReloadDebounce sets how long the watcher coalesces filesystem events
// before reloading. Defaults to 250ms; zero reloads on every event.
func WithReloadDebounce(dur time.Duration) TemplateDirOption {
	return func(d *TemplateDir) { d.debounce = dur }
}

// NewTemplateDir constructs a loader over dir, decoding with codec into
// templates. Nil codec and templates get fresh defaults; the registry is
// reachable afterwards via Templates.
func NewTemplateDir(dir string, codec *widget.Codec, templates *widget.TemplateRegistry, opts ...TemplateDirOption) *TemplateDir {
	d := &TemplateDir{
		dir:       dir,
		codec:     codec,
		templates: templates,
		debounce:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.codec == nil {
		d.codec = widget.NewCodec()
	}
	if d.templates == nil {
		d.templates = widget.NewTemplateRegistry()
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Templates returns the registry the loader populates.
func (d *TemplateDir) Templates() *widget.TemplateRegistry { return d.templates }

// Load reads every *.json file in the directory (sorted by name, so
// registration order is stable) and registers the decoded widget as a
// template. It fails only when the directory itself is unreadable.
func (d *TemplateDir) Load() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("widgetservice: read template dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(d.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn("template file unreadable",
				slog.String("path", path), slog.String("err", err.Error()))
			continue
		}
		w, err := d.codec.Decode(data)
		if err != nil {
			d.log.Warn("template file does not decode",
				slog.String("path", path), slog.String("err", err.Error()))
			continue
		}
		if err := d.templates.Register(widget.Discriminator(w), w); err != nil {
			d.log.Warn("template registration rejected",
				slog.String("path", path), slog.String("err", err.Error()))
		}
	}
	return nil
}

// Watch blocks until ctx is done, reloading the directory whenever its
// contents change. Events are coalesced over the configured debounce
// window. Only one Watch per TemplateDir runs at a time; a second call
// returns immediately.
func (d *TemplateDir) Watch(ctx context.Context) error {
	if !d.watching.CompareAndSwap(false, true) {
		return nil
	}
	defer d.watching.Store(false)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("widgetservice: watch template dir: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	if err := w.Add(d.dir); err != nil {
		return fmt.Errorf("widgetservice: watch template dir: %w", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	reload := func() {
		if err := d.Load(); err != nil {
			d.log.Warn("template reload failed", slog.String("err", err.Error()))
			return
		}
		_ = d.notifier.Notify(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			if d.debounce <= 0 {
				reload()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(d.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.debounce)
			}
		case <-fire:
			reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Debug("template watcher error", slog.String("err", err.Error()))
		}
	}
}

// Subscriber returns a channel signalled after each successful reload.
func (d *TemplateDir) Subscriber() <-chan struct{} {
	return d.notifier.Subscriber()
}
