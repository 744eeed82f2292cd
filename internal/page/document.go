package page

import (
	"sort"
	"strconv"
)

type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
)

// OpKind names a root-document mutation as sent to the browser.
type OpKind string

const (
	OpClassAdd    OpKind = "class.add"
	OpClassRemove OpKind = "class.remove"
	OpAttr        OpKind = "attr"
	OpStyleAdd    OpKind = "style.add"
	OpStyleRemove OpKind = "style.remove"
)

// Op is one observed mutation.
type Op struct {
	Kind  OpKind `json:"op"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	ID    string `json:"id,omitempty"`
	CSS   string `json:"css,omitempty"`
}

// Style is a stylesheet injected into the document head.
type Style struct {
	ID  string
	CSS string
}

// Document is the root element of one context plus the pieces of the head
// the theme code touches. It is not safe for concurrent use; the owning loop
// (or the rendering goroutine, for a pre-render) is its only user.
type Document struct {
	classes   map[string]struct{}
	attrs     map[string]string
	styles    []Style
	nextStyle int

	ready    ReadyState
	onLoaded []func()

	frames    []func()
	observers map[int]func(Op)
	nextObs   int
}

func NewDocument() *Document {
	return &Document{
		classes:   make(map[string]struct{}),
		attrs:     make(map[string]string),
		ready:     Loading,
		observers: make(map[int]func(Op)),
	}
}

func (d *Document) HasClass(name string) bool {
	_, ok := d.classes[name]
	return ok
}

// Classes returns the root classes in sorted order.
func (d *Document) Classes() []string {
	out := make([]string, 0, len(d.classes))
	for c := range d.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ToggleClass adds or removes name and reports whether anything changed.
func (d *Document) ToggleClass(name string, on bool) bool {
	if on == d.HasClass(name) {
		return false
	}
	if on {
		d.classes[name] = struct{}{}
		d.emit(Op{Kind: OpClassAdd, Name: name})
	} else {
		delete(d.classes, name)
		d.emit(Op{Kind: OpClassRemove, Name: name})
	}
	return true
}

func (d *Document) Attr(name string) (string, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

// Attrs returns a copy of the root attributes.
func (d *Document) Attrs() map[string]string {
	out := make(map[string]string, len(d.attrs))
	for k, v := range d.attrs {
		out[k] = v
	}
	return out
}

// SetAttribute reports whether the value changed.
func (d *Document) SetAttribute(name, value string) bool {
	if old, ok := d.attrs[name]; ok && old == value {
		return false
	}
	d.attrs[name] = value
	d.emit(Op{Kind: OpAttr, Name: name, Value: value})
	return true
}

// InjectStyle appends a head stylesheet and returns its id.
func (d *Document) InjectStyle(css string) string {
	d.nextStyle++
	id := "blogd-style-" + strconv.Itoa(d.nextStyle)
	d.styles = append(d.styles, Style{ID: id, CSS: css})
	d.emit(Op{Kind: OpStyleAdd, ID: id, CSS: css})
	return id
}

func (d *Document) RemoveStyle(id string) bool {
	for i, s := range d.styles {
		if s.ID == id {
			d.styles = append(d.styles[:i], d.styles[i+1:]...)
			d.emit(Op{Kind: OpStyleRemove, ID: id})
			return true
		}
	}
	return false
}

func (d *Document) Styles() []Style {
	return append([]Style(nil), d.styles...)
}

func (d *Document) ReadyState() ReadyState { return d.ready }

// OnContentLoaded runs fn when the document becomes interactive.
func (d *Document) OnContentLoaded(fn func()) {
	if d.ready == Interactive {
		return
	}
	d.onLoaded = append(d.onLoaded, fn)
}

// MarkInteractive flips the ready state and fires content-loaded callbacks once.
func (d *Document) MarkInteractive() {
	if d.ready == Interactive {
		return
	}
	d.ready = Interactive
	fns := d.onLoaded
	d.onLoaded = nil
	for _, fn := range fns {
		fn()
	}
}

// RequestFrame schedules fn for the next rendering opportunity.
func (d *Document) RequestFrame(fn func()) {
	d.frames = append(d.frames, fn)
}

// RunFrames runs the callbacks requested before this call. Callbacks that
// request another frame land in the following one.
func (d *Document) RunFrames() int {
	fns := d.frames
	d.frames = nil
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// PendingFrames returns the number of callbacks waiting for the next frame.
func (d *Document) PendingFrames() int { return len(d.frames) }

// Observe registers fn for every subsequent mutation.
func (d *Document) Observe(fn func(Op)) (cancel func()) {
	d.nextObs++
	id := d.nextObs
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

func (d *Document) emit(op Op) {
	for _, fn := range d.observers {
		fn(op)
	}
}
