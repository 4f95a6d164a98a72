package compile

import "strings"

// appAliases normalizes spoken application names to the identifier the
// desktop host launches. Names not listed here are not treated as
// applications and fall through the rule cascade.
var appAliases = map[string]string{
	"notepad":      "notepad",
	"calculator":   "calculator",
	"calc":         "calculator",
	"chrome":       "google-chrome",
	"firefox":      "firefox",
	"terminal":     "x-terminal-emulator",
	"console":      "x-terminal-emulator",
	"vs code":      "code",
	"vscode":       "code",
	"code":         "code",
	"files":        "nautilus",
	"explorer":     "nautilus",
	"file manager": "nautilus",
	"spotify":      "spotify",
	"word":         "libreoffice --writer",
	"excel":        "libreoffice --calc",
	"text editor":  "gedit",
	"gedit":        "gedit",
	"settings":     "gnome-control-center",
}

// knownTLDs bounds the URL rule so that "open the settings panel" is never
// mistaken for a domain.
var knownTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "io": true, "dev": true,
	"ai": true, "co": true, "edu": true, "gov": true, "app": true,
	"me": true, "tv": true, "xyz": true, "info": true, "in": true,
	"uk": true, "de": true, "fr": true, "jp": true,
}

// keyNames maps spoken key names to xdotool keysyms.
var keyNames = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"tab":       "Tab",
	"esc":       "Escape",
	"escape":    "Escape",
	"space":     "space",
	"spacebar":  "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Page_Up",
	"page up":   "Page_Up",
	"pagedown":  "Page_Down",
	"page down": "Page_Down",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"win":       "super",
	"windows":   "super",
	"super":     "super",
	"cmd":       "super",
	"f1":        "F1", "f2": "F2", "f3": "F3", "f4": "F4",
	"f5": "F5", "f6": "F6", "f7": "F7", "f8": "F8",
	"f9": "F9", "f10": "F10", "f11": "F11", "f12": "F12",
}

// NormalizeKey converts a spoken key or chord ("ctrl+shift+t", "enter")
// into the xdotool form. Unknown single characters pass through unchanged
// so literal letters still work.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	raw = strings.ReplaceAll(raw, " plus ", "+")
	parts := strings.Split(raw, "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if mapped, ok := keyNames[part]; ok {
			parts[i] = mapped
		} else {
			parts[i] = part
		}
	}
	return strings.Join(parts, "+")
}

// normalizeApp resolves a spoken application name, reporting whether the
// name is known.
func normalizeApp(raw string) (string, bool) {
	name := strings.TrimSpace(strings.ToLower(raw))
	name = strings.TrimPrefix(name, "the ")
	app, ok := appAliases[name]
	return app, ok
}
