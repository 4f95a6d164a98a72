package verify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/host"
	"github.com/operator-ai/deskpilot/internal/plan"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Verifier checks that a primitive actually achieved its effect.
// Verification is primitive-type-specific: a launcher process exiting zero
// says nothing about whether the target window appeared, so open_app is
// confirmed with a window poll and open_url with a page fetch.
type Verifier struct {
	Desktop *host.DesktopHost
	Client  *http.Client

	// AppPollTimeout bounds the open_app window poll.
	AppPollTimeout time.Duration
}

// NewVerifier returns a verifier over the given desktop host.
func NewVerifier(desktop *host.DesktopHost) *Verifier {
	return &Verifier{
		Desktop:        desktop,
		Client:         &http.Client{Timeout: 30 * time.Second},
		AppPollTimeout: 10 * time.Second,
	}
}

// Verify inspects the invocation result for one primitive and reports
// whether its effect can be confirmed.
func (v *Verifier) Verify(ctx context.Context, prim action.Primitive, res host.Result) plan.VerifyResult {
	if res.ExitCode != 0 {
		return plan.VerifyResult{
			Passed:  false,
			Message: fmt.Sprintf("%s exited %d: %s", prim.Kind, res.ExitCode, res.Stderr),
		}
	}

	switch prim.Kind {
	case action.KindOpenApp:
		return v.verifyApp(ctx, prim)
	case action.KindOpenURL:
		return v.verifyURL(ctx, prim.StringParam("url"))
	default:
		return plan.VerifyResult{Passed: true, Message: fmt.Sprintf("%s completed", prim.Kind)}
	}
}

// verifyApp polls for a visible window matching the spoken application
// name, then the launch identifier.
func (v *Verifier) verifyApp(ctx context.Context, prim action.Primitive) plan.VerifyResult {
	name := prim.StringParam("name")
	if name == "" {
		name = prim.StringParam("app")
	}

	deadline := time.Now().Add(v.AppPollTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		if v.Desktop.WindowVisible(ctx, name) || v.Desktop.WindowVisible(ctx, prim.StringParam("app")) {
			return plan.VerifyResult{Passed: true, Message: fmt.Sprintf("window for %q is visible", name)}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return plan.VerifyResult{
		Passed:  false,
		Message: fmt.Sprintf("no visible window for %q within %s", name, v.AppPollTimeout),
	}
}

// verifyURL fetches the page and extracts its title through readability,
// confirming the destination actually serves content.
func (v *Verifier) verifyURL(ctx context.Context, rawURL string) plan.VerifyResult {
	if rawURL == "" {
		return plan.VerifyResult{Passed: false, Message: "open_url had no url to verify"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return plan.VerifyResult{Passed: false, Message: fmt.Sprintf("bad url %q: %v", rawURL, err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := v.Client.Do(req)
	if err != nil {
		return plan.VerifyResult{Passed: false, Message: fmt.Sprintf("fetch failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return plan.VerifyResult{Passed: false, Message: fmt.Sprintf("page returned status %d", resp.StatusCode)}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return plan.VerifyResult{Passed: false, Message: fmt.Sprintf("bad url %q: %v", rawURL, err)}
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		// A page that fetched but resists extraction still counts as
		// reachable.
		return plan.VerifyResult{Passed: true, Message: fmt.Sprintf("page reachable (status %d)", resp.StatusCode)}
	}

	title := strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(article.Title))
	if title == "" {
		title = parsed.Host
	}
	return plan.VerifyResult{Passed: true, Message: fmt.Sprintf("page loaded: %s", title)}
}
