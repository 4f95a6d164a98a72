package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/host"
)

func urlVerifier() *Verifier {
	return &Verifier{
		Client:         &http.Client{Timeout: 5 * time.Second},
		AppPollTimeout: time.Second,
	}
}

func TestVerify_NonZeroExitFails(t *testing.T) {
	v := urlVerifier()
	prim := action.New(action.KindKeyboardType, map[string]any{"text": "hi"}, "type")
	got := v.Verify(context.Background(), prim, host.Result{ExitCode: 1, Stderr: "xdotool: no display"})
	if got.Passed {
		t.Error("a non-zero exit must fail verification")
	}
	if !strings.Contains(got.Message, "no display") {
		t.Errorf("message = %q, want the stderr carried through", got.Message)
	}
}

func TestVerify_DefaultKindsPassOnExitZero(t *testing.T) {
	v := urlVerifier()
	for _, kind := range []action.Kind{
		action.KindKeyboardType, action.KindMouseClick, action.KindWait, action.KindScroll,
	} {
		got := v.Verify(context.Background(), action.New(kind, nil, "x"), host.Result{})
		if !got.Passed {
			t.Errorf("%s with exit 0 failed verification: %s", kind, got.Message)
		}
	}
}

func TestVerifyURL_TitleExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Example Domain</title></head>
			<body><article><h1>Example Domain</h1><p>` + strings.Repeat("Readable content here. ", 40) + `</p></article></body></html>`))
	}))
	defer srv.Close()

	v := urlVerifier()
	prim := action.New(action.KindOpenURL, map[string]any{"url": srv.URL}, "nav")
	got := v.Verify(context.Background(), prim, host.Result{})
	if !got.Passed {
		t.Fatalf("verification failed: %s", got.Message)
	}
	if !strings.Contains(got.Message, "Example Domain") && !strings.Contains(got.Message, "page") {
		t.Errorf("message = %q, want the page title or reachability", got.Message)
	}
}

func TestVerifyURL_ErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	v := urlVerifier()
	prim := action.New(action.KindOpenURL, map[string]any{"url": srv.URL}, "nav")
	got := v.Verify(context.Background(), prim, host.Result{})
	if got.Passed {
		t.Error("a 404 must fail verification")
	}
	if !strings.Contains(got.Message, "404") {
		t.Errorf("message = %q, want the status code", got.Message)
	}
}

func TestVerifyURL_UnreachableFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	v := urlVerifier()
	prim := action.New(action.KindOpenURL, map[string]any{"url": srv.URL}, "nav")
	got := v.Verify(context.Background(), prim, host.Result{})
	if got.Passed {
		t.Error("an unreachable page must fail verification")
	}
}

func TestVerifyURL_MissingURLFails(t *testing.T) {
	v := urlVerifier()
	prim := action.New(action.KindOpenURL, nil, "nav")
	if got := v.Verify(context.Background(), prim, host.Result{}); got.Passed {
		t.Error("open_url without a url must fail verification")
	}
}

func TestVerifyURL_SendsBrowserUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html><head><title>t</title></head><body>ok</body></html>"))
	}))
	defer srv.Close()

	v := urlVerifier()
	prim := action.New(action.KindOpenURL, map[string]any{"url": srv.URL}, "nav")
	v.Verify(context.Background(), prim, host.Result{})
	if !strings.Contains(gotUA, "Mozilla") {
		t.Errorf("user agent = %q, want a browser identity", gotUA)
	}
}
