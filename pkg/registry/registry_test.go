package registry

import (
	"errors"
	"strings"
	"testing"
)

var errWidget = errors.New("unknown widget")

type widget struct{ name string }

func newWidgets() *Registry[*widget] {
	r := New[*widget]("widget", errWidget)
	r.Register("b", func() (*widget, error) { return &widget{"b"}, nil })
	r.Register("a", func() (*widget, error) { return &widget{"a"}, nil })
	return r
}

func TestNewBuildsFreshInstances(t *testing.T) {
	r := newWidgets()

	w1, err := r.New("a")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w2, _ := r.New("a")
	if w1 == w2 {
		t.Error("expected distinct instances per call")
	}
	if w1.name != "a" {
		t.Errorf("got %q, want a", w1.name)
	}
}

func TestListSorted(t *testing.T) {
	r := newWidgets()
	got := strings.Join(r.List(), ",")
	if got != "a,b" {
		t.Errorf("List = %s, want a,b", got)
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
}

func TestNotFound(t *testing.T) {
	r := newWidgets()

	_, err := r.New("zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, errWidget) {
		t.Errorf("expected kind sentinel, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if len(nf.Options) != 2 {
		t.Errorf("Options = %v, want 2 entries", nf.Options)
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Errorf("message should list options: %s", err)
	}
}

func TestFactoryErrorWrapped(t *testing.T) {
	boom := errors.New("no model file")
	r := New[*widget]("widget", nil)
	r.Register("broken", func() (*widget, error) { return nil, boom })

	_, err := r.New("broken")
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped factory error, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	r := newWidgets()
	r.Unregister("a")
	if r.Has("a") {
		t.Error("a should be gone")
	}
}
