package compile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/plan"
)

// Rule is one entry in the compiler's ordered pattern cascade. Build may
// reject a regexp match (ok=false), in which case the cascade moves on to
// the next rule.
type Rule struct {
	Name  string
	re    *regexp.Regexp
	build func(m []string, phrase string) ([]action.Primitive, bool)
}

// Match attempts the rule against a phrase.
func (r Rule) Match(phrase string) ([]action.Primitive, bool) {
	m := r.re.FindStringSubmatch(phrase)
	if m == nil {
		return nil, false
	}
	return r.build(m, phrase)
}

// Rules is evaluated strictly in order and the first match wins. The
// ordering is load-bearing: "click on Settings" must reach the text-click
// rule before anything can treat it as a raw command, and "open google.com"
// must be a URL before it can be an application.
var Rules = []Rule{
	{
		Name: "launcher",
		re:   regexp.MustCompile(`(?i)\b(?:start\s+menu|app\s+launcher|launcher)\b`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			return []action.Primitive{action.New(action.KindKeyboardPress,
				map[string]any{"key": "super"}, "open the system launcher")}, true
		},
	},
	{
		Name: "open_url",
		re:   regexp.MustCompile(`(?i)^(?:go\s+to|navigate\s+to|browse\s+to|visit|open|go)\s+(?:https?://)?([\w-]+(?:\.[\w-]+)*\.([a-z]{2,}))(/\S*)?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			if !knownTLDs[strings.ToLower(m[2])] {
				return nil, false
			}
			url := "https://" + m[1] + m[3]
			return []action.Primitive{action.New(action.KindOpenURL,
				map[string]any{"url": url}, "navigate to %s", url)}, true
		},
	},
	{
		Name: "open_app",
		re:   regexp.MustCompile(`(?i)^(?:open|launch|start)\s+(.+)$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			app, ok := normalizeApp(m[1])
			if !ok {
				return nil, false
			}
			return []action.Primitive{action.New(action.KindOpenApp,
				map[string]any{"app": app, "name": strings.TrimSpace(m[1])},
				"open application %s", app)}, true
		},
	},
	{
		Name: "click_coords",
		re:   regexp.MustCompile(`(?i)^(right\s+)?click(?:\s+(?:on|at))?\s*\(?\s*(\d+)\s*,\s*(\d+)\s*\)?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			x, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			button := "left"
			if m[1] != "" {
				button = "right"
			}
			return []action.Primitive{action.New(action.KindMouseClick,
				map[string]any{"x": x, "y": y, "button": button},
				"%s click at (%d, %d)", button, x, y)}, true
		},
	},
	{
		Name: "click_text",
		re:   regexp.MustCompile(`(?i)^(right\s+)?click\s+(?:on\s+|the\s+)*(.+)$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			button := "left"
			if m[1] != "" {
				button = "right"
			}
			text := strings.Trim(strings.TrimSpace(m[2]), `"'`)
			return []action.Primitive{action.New(action.KindClickOnText,
				map[string]any{"text": text, "button": button},
				"click on text %q", text)}, true
		},
	},
	{
		Name: "find_text",
		re:   regexp.MustCompile(`(?i)^find\s+(.+?)(?:\s+on\s+(?:the\s+)?screen)?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			text := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			return []action.Primitive{action.New(action.KindFindText,
				map[string]any{"text": text}, "find %q on screen", text)}, true
		},
	},
	{
		Name: "type_text",
		re:   regexp.MustCompile(`(?i)^(?:type|enter|write|input)\s+(.+)$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			text := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			return []action.Primitive{action.New(action.KindKeyboardType,
				map[string]any{"text": text}, "type %q", text)}, true
		},
	},
	{
		Name: "search_for",
		re:   regexp.MustCompile(`(?i)^search\s+for\s+(.+)$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			term := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			return []action.Primitive{
				action.New(action.KindKeyboardType,
					map[string]any{"text": term}, "type %q", term),
				action.New(action.KindKeyboardPress,
					map[string]any{"key": "Return"}, "press Enter"),
			}, true
		},
	},
	{
		Name: "key_press",
		re:   regexp.MustCompile(`(?i)^(?:press|hit|push)\s+(?:the\s+)?(.+?)(?:\s+key)?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			key := NormalizeKey(m[1])
			return []action.Primitive{action.New(action.KindKeyboardPress,
				map[string]any{"key": key}, "press %s", key)}, true
		},
	},
	{
		Name: "screenshot",
		re:   regexp.MustCompile(`(?i)\b(?:screenshot|capture\s+(?:the\s+)?screen)\b`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			return []action.Primitive{action.New(action.KindScreenshot,
				nil, "capture the screen")}, true
		},
	},
	{
		Name: "wait",
		re:   regexp.MustCompile(`(?i)^(?:wait|pause|sleep)(?:\s+for)?\s+(\d+)\s*(ms|milliseconds?|s|secs?|seconds?)?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			n, _ := strconv.Atoi(m[1])
			unit := strings.ToLower(m[2])
			ms := n
			if unit == "" || strings.HasPrefix(unit, "s") {
				ms = n * 1000
			}
			return []action.Primitive{action.New(action.KindWait,
				map[string]any{"ms": ms}, "wait %d ms", ms)}, true
		},
	},
	{
		Name: "scroll",
		re:   regexp.MustCompile(`(?i)^scroll\s+(up|down)(?:\s+(\d+))?$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			amount := 3
			if m[2] != "" {
				amount, _ = strconv.Atoi(m[2])
			}
			dir := strings.ToLower(m[1])
			return []action.Primitive{action.New(action.KindScroll,
				map[string]any{"direction": dir, "amount": amount},
				"scroll %s %d", dir, amount)}, true
		},
	},
	{
		// Total-coverage fallback: the whole phrase runs as a shell
		// command, verbatim. The risk classifier marks it
		// needs_approval, so it still cannot run unreviewed.
		Name: "shell_fallback",
		re:   regexp.MustCompile(`(?s)^.+$`),
		build: func(m []string, phrase string) ([]action.Primitive, bool) {
			return []action.Primitive{action.New(action.KindShellCommand,
				map[string]any{"command": phrase}, "run command: %s", phrase)}, true
		},
	},
}

// CompileStep maps one step phrase to its primitives and the name of the
// rule that matched. The fallback rule guarantees a match for any
// non-empty phrase.
func CompileStep(phrase string) ([]action.Primitive, string) {
	for _, rule := range Rules {
		if prims, ok := rule.Match(phrase); ok {
			return prims, rule.Name
		}
	}
	// Unreachable: shell_fallback matches everything non-empty, and the
	// segmenter drops empty phrases.
	return nil, ""
}

// Compile segments a request and compiles every phrase into a Step. Risk
// is left unset; the classifier fills it in afterwards.
func Compile(request string) []plan.Step {
	var steps []plan.Step
	for i, phrase := range Segment(request) {
		prims, rule := CompileStep(phrase)
		steps = append(steps, plan.Step{
			Index:        i,
			SourcePhrase: phrase,
			Primitives:   prims,
			Intent:       fmt.Sprintf("%s (%s)", phrase, rule),
		})
	}
	return steps
}
