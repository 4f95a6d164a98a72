package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/operator-ai/deskpilot/internal/action"
)

// DesktopHost drives the local desktop through xdotool for input synthesis
// and ffmpeg/scrot for screen capture. Everything is an external process
// call bounded by the caller's context.
type DesktopHost struct {
	// ScreenshotDir receives captured images; defaults to "screenshots".
	ScreenshotDir string
}

// NewDesktopHost returns a desktop host writing captures under dir.
func NewDesktopHost(dir string) *DesktopHost {
	if dir == "" {
		dir = "screenshots"
	}
	return &DesktopHost{ScreenshotDir: dir}
}

// Supports reports the primitive kinds the desktop host can perform.
// click_on_text and find_text are resolved by the vision subsystem before
// they reach any host, and open_url belongs to the browser host.
func (h *DesktopHost) Supports(kind action.Kind) bool {
	switch kind {
	case action.KindMouseClick, action.KindMouseMove, action.KindKeyboardType,
		action.KindKeyboardPress, action.KindScroll, action.KindOpenApp,
		action.KindShellCommand, action.KindScreenshot, action.KindWait:
		return true
	}
	return false
}

// Invoke performs one primitive.
func (h *DesktopHost) Invoke(ctx context.Context, prim action.Primitive) (Result, error) {
	switch prim.Kind {
	case action.KindMouseMove:
		return h.xdotool(ctx, "mousemove",
			strconv.Itoa(prim.IntParam("x")), strconv.Itoa(prim.IntParam("y")))
	case action.KindMouseClick:
		return h.click(ctx, prim)
	case action.KindKeyboardType:
		return h.xdotool(ctx, "type", "--delay", "40", prim.StringParam("text"))
	case action.KindKeyboardPress:
		key := prim.StringParam("key")
		if key == "" {
			return Result{}, fmt.Errorf("keyboard_press requires a key")
		}
		return h.xdotool(ctx, "key", key)
	case action.KindScroll:
		return h.scroll(ctx, prim)
	case action.KindOpenApp:
		return h.openApp(ctx, prim)
	case action.KindShellCommand:
		return h.shell(ctx, prim.StringParam("command"))
	case action.KindScreenshot:
		path, res, err := h.CaptureScreen(ctx)
		if err == nil && res.ExitCode == 0 {
			res.Stdout = path
		}
		return res, err
	case action.KindWait:
		return h.wait(ctx, prim.IntParam("ms"))
	}
	return Result{}, fmt.Errorf("desktop host cannot perform %s", prim.Kind)
}

func (h *DesktopHost) click(ctx context.Context, prim action.Primitive) (Result, error) {
	button := "1"
	if prim.StringParam("button") == "right" {
		button = "3"
	}
	x, y := prim.IntParam("x"), prim.IntParam("y")
	if res, err := h.xdotool(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y)); err != nil || res.ExitCode != 0 {
		return res, err
	}
	return h.xdotool(ctx, "click", button)
}

func (h *DesktopHost) scroll(ctx context.Context, prim action.Primitive) (Result, error) {
	// xdotool buttons 4/5 are wheel up/down.
	button := "5"
	if prim.StringParam("direction") == "up" {
		button = "4"
	}
	amount := prim.IntParam("amount")
	if amount <= 0 {
		amount = 3
	}
	return h.xdotool(ctx, "click", "--repeat", strconv.Itoa(amount), button)
}

// openApp starts the application detached. The launcher process often
// exits immediately while the target window is still loading, so exit
// code alone is not trusted; the engine verifies with a window-title poll.
func (h *DesktopHost) openApp(ctx context.Context, prim action.Primitive) (Result, error) {
	app := prim.StringParam("app")
	if app == "" {
		return Result{}, fmt.Errorf("open_app requires an app identifier")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", app+" >/dev/null 2>&1 &")
	if err := cmd.Run(); err != nil {
		return Result{ExitCode: 1, Stderr: err.Error()}, nil
	}
	return Result{Stdout: fmt.Sprintf("launched %s", app)}, nil
}

func (h *DesktopHost) shell(ctx context.Context, command string) (Result, error) {
	if strings.TrimSpace(command) == "" {
		return Result{}, fmt.Errorf("empty shell command")
	}
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		res.ExitCode = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		}
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res, nil
}

func (h *DesktopHost) wait(ctx context.Context, ms int) (Result, error) {
	if ms <= 0 {
		ms = 1000
	}
	select {
	case <-ctx.Done():
		return Result{ExitCode: 1, Stderr: ctx.Err().Error()}, nil
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return Result{Stdout: fmt.Sprintf("waited %d ms", ms)}, nil
	}
}

// CaptureScreen grabs the desktop into a timestamped PNG and returns its
// path. ffmpeg x11grab first, scrot as fallback.
func (h *DesktopHost) CaptureScreen(ctx context.Context) (string, Result, error) {
	if err := os.MkdirAll(h.ScreenshotDir, 0755); err != nil {
		return "", Result{}, fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(h.ScreenshotDir, fmt.Sprintf("desktop_%d.png", time.Now().UnixNano()))

	cmd := exec.CommandContext(ctx, "ffmpeg", "-f", "x11grab", "-i", ":0.0", "-frames:v", "1", path, "-y")
	output, err := cmd.CombinedOutput()
	if err != nil {
		cmd = exec.CommandContext(ctx, "scrot", path)
		output, err = cmd.CombinedOutput()
		if err != nil {
			return "", Result{ExitCode: 1, Stderr: string(output)}, nil
		}
	}
	abs, _ := filepath.Abs(path)
	return abs, Result{Stdout: abs}, nil
}

// ActiveWindow returns the title of the currently focused window, or ""
// when it cannot be determined. Used for the timeline's observe field.
func (h *DesktopHost) ActiveWindow(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// WindowVisible polls for a window whose title or class matches name. Used
// to verify open_app beyond its exit code.
func (h *DesktopHost) WindowVisible(ctx context.Context, name string) bool {
	cmd := exec.CommandContext(ctx, "xdotool", "search", "--onlyvisible", "--name", name)
	if err := cmd.Run(); err == nil {
		return true
	}
	cmd = exec.CommandContext(ctx, "xdotool", "search", "--onlyvisible", "--class", name)
	return cmd.Run() == nil
}

func (h *DesktopHost) xdotool(ctx context.Context, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, "xdotool", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return Result{}, fmt.Errorf("xdotool is not installed: %w", err)
		}
		return Result{ExitCode: 1, Stderr: strings.TrimSpace(string(output))}, nil
	}
	return Result{Stdout: strings.TrimSpace(string(output))}, nil
}
