package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/operator-ai/deskpilot/internal/agent"
	"github.com/operator-ai/deskpilot/internal/engine"
	"github.com/operator-ai/deskpilot/internal/gateway"
	"github.com/operator-ai/deskpilot/internal/governance"
	"github.com/operator-ai/deskpilot/internal/host"
	"github.com/operator-ai/deskpilot/internal/observability"
	"github.com/operator-ai/deskpilot/internal/plan"
	"github.com/operator-ai/deskpilot/internal/store"
	"github.com/operator-ai/deskpilot/internal/verify"
	"github.com/operator-ai/deskpilot/internal/vision"
	"github.com/operator-ai/deskpilot/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.yaml")
	logger := observability.NewLogger()

	// Risk policy
	classifier := governance.NewClassifier()
	if cfg.Policy.Path != "" {
		var err error
		classifier, err = governance.LoadClassifier(cfg.Policy.Path)
		if err != nil {
			log.Fatalf("failed to load risk policy: %v", err)
		}
	}

	// Automation hosts
	desktop := host.NewDesktopHost(cfg.App.ScreenshotDir)
	browser := host.NewBrowserHost(cfg.App.ScreenshotDir)
	defer browser.Close()

	vis := vision.New(screenCapturer{desktop}, vision.NewTesseractRecognizer())
	verifier := verify.NewVerifier(desktop)

	gate := governance.NewGate()
	eng := engine.New([]host.Host{browser, desktop}, vis, verifier, gate, logger)
	eng.Observer = desktop
	if cfg.Engine.PrimitiveTimeoutSec > 0 {
		eng.PrimitiveTimeout = time.Duration(cfg.Engine.PrimitiveTimeoutSec) * time.Second
	}
	if cfg.Engine.SettleDelayMs > 0 {
		eng.SettleDelay = time.Duration(cfg.Engine.SettleDelayMs) * time.Millisecond
	}

	// Language model for the healing layer
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	var err error
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	healer := agent.NewHealer(llm, prompts, logger)

	approver := gateway.NewConsoleApprover(os.Stdin, os.Stdout)
	eng.Pauser = approver

	session := agent.NewSession(classifier, gate, eng, healer, approver, logger)
	if cfg.Healing.MaxAttempts > 0 {
		session.MaxAttempts = cfg.Healing.MaxAttempts
	}

	if cfg.Audit.Enabled {
		auditStore, err := store.NewAuditStore(cfg.Audit.Path)
		if err != nil {
			log.Fatal(err)
		}
		defer auditStore.Close()
		session.Store = auditStore
	}

	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, tgCfg.ChatID)
		if err != nil {
			log.Printf("Warning: telegram gateway disabled: %v", err)
		} else {
			defer tg.Stop()
			session.Notifier = tg
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	// Request loop
	for {
		request, err := approver.ReadRequest(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				break
			}
			log.Printf("input error: %v", err)
			break
		}

		cwd, _ := os.Getwd()
		p, err := session.CompileAndRun(ctx, request, agent.RequestContext{Cwd: cwd})
		switch {
		case err != nil:
			log.Printf("\033[91m[ FAIL ] plan %s: %v\033[0m", planID(p), err)
		case p != nil && p.Resolution == plan.ResolutionRejected:
			log.Printf("[ SKIP ] plan %s cancelled by operator", p.ID)
		default:
			log.Printf("\033[96m[  OK  ] plan %s completed\033[0m", planID(p))
		}

		if ctx.Err() != nil {
			break
		}
	}

	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] SESSION CLOSED. GOODBYE.\033[0m")
}

// screenCapturer adapts the desktop host to the vision capture boundary.
type screenCapturer struct {
	desktop *host.DesktopHost
}

func (s screenCapturer) CaptureScreen(ctx context.Context) (string, error) {
	path, res, err := s.desktop.CaptureScreen(ctx)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", errors.New(res.Stderr)
	}
	return path, nil
}

func planID(p *plan.Plan) string {
	if p == nil {
		return "?"
	}
	return p.ID
}
