package action

import "fmt"

// Kind identifies the automation primitive a Step compiles down to.
type Kind string

const (
	KindMouseClick    Kind = "mouse_click"
	KindMouseMove     Kind = "mouse_move"
	KindKeyboardType  Kind = "keyboard_type"
	KindKeyboardPress Kind = "keyboard_press"
	KindScreenshot    Kind = "screenshot"
	KindOpenApp       Kind = "open_app"
	KindOpenURL       Kind = "open_url"
	KindShellCommand  Kind = "shell_command"
	KindWait          Kind = "wait"
	KindScroll        Kind = "scroll"
	KindClickOnText   Kind = "click_on_text"
	KindFindText      Kind = "find_text"
)

// Kinds lists every primitive kind the compiler can emit. The healing
// prompt enumerates this list so the model never invents a new one.
var Kinds = []Kind{
	KindMouseClick, KindMouseMove, KindKeyboardType, KindKeyboardPress,
	KindScreenshot, KindOpenApp, KindOpenURL, KindShellCommand,
	KindWait, KindScroll, KindClickOnText, KindFindText,
}

// Known reports whether k is one of the primitive kinds above.
func Known(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Primitive is the smallest automatable unit: one click, one keystroke
// sequence, one launch. Pure data, immutable once created; the params map
// must not be mutated after construction.
type Primitive struct {
	Kind        Kind           `json:"kind"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description"`
}

// New builds a primitive with a formatted description.
func New(kind Kind, params map[string]any, format string, args ...any) Primitive {
	return Primitive{
		Kind:        kind,
		Params:      params,
		Description: fmt.Sprintf(format, args...),
	}
}

// String returns the kind and description, for logs and operator previews.
func (p Primitive) String() string {
	return fmt.Sprintf("%s: %s", p.Kind, p.Description)
}

// StringParam returns the named param as a string, or "" when absent.
func (p Primitive) StringParam(name string) string {
	if v, ok := p.Params[name].(string); ok {
		return v
	}
	return ""
}

// IntParam returns the named param as an int, or 0 when absent. Params
// round-tripped through JSON come back as float64, so both are accepted.
func (p Primitive) IntParam(name string) int {
	switch v := p.Params[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
