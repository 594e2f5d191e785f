package threads

import (
	"testing"

	"github.com/chatware/chatwidgets-go/widget"
)

func TestWidgetRoundTripThroughTurn(t *testing.T) {
	c := widget.NewCodec()
	original := []widget.Widget{
		&widget.ButtonWidget{Base: widget.Base{Label: "Go", Action: "go"}},
		&widget.ToggleWidget{Base: widget.Base{Label: "On", Action: "on"}},
	}

	fragments, err := EncodeWidgets(c, original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(fragments))
	}

	decoded, err := DecodeWidgets(c, fragments)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(decoded))
	}
	if _, ok := decoded[0].(*widget.ButtonWidget); !ok {
		t.Fatalf("expected button, got %T", decoded[0])
	}
	if decoded[1].WidgetAction() != "on" {
		t.Fatalf("unexpected widget: %+v", decoded[1])
	}
}

func TestEncodeWidgetsEmpty(t *testing.T) {
	fragments, err := EncodeWidgets(widget.NewCodec(), nil)
	if err != nil || fragments != nil {
		t.Fatalf("fragments=%v err=%v, want nil/nil", fragments, err)
	}
}

type pooledWidget struct {
	widget.Base
	recycled bool
}

func (pooledWidget) Purpose() string { return "pooled test widget" }
func (p *pooledWidget) Recycle()     { p.recycled = true }

func TestReleaseWidgetsInvokesRecycle(t *testing.T) {
	p := &pooledWidget{}
	plain := &widget.ButtonWidget{}
	ReleaseWidgets([]widget.Widget{p, plain})
	if !p.recycled {
		t.Fatal("Recycle not invoked")
	}
}
