// scripts/backend_check.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/providerfactory"
	"github.com/mwiater/concilium/internal/providers"
	"github.com/mwiater/concilium/internal/util"
)

// probeResult is the outcome of one backend probe.
type probeResult struct {
	slot    string
	name    string
	elapsed time.Duration
	reply   string
	err     error
}

func main() {
	configPath := flag.String("config", appconfig.DefaultConfigPath, "Path to config file")
	only := flag.String("slot", "", "Probe a single slot (grok, sonnet or gemini)")
	prompt := flag.String("prompt", "Responda apenas com a palavra: pronto.", "Prompt sent to every backend")
	timeout := flag.Duration("timeout", 60*time.Second, "Per-backend timeout")
	flag.Parse()

	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "env error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	provs, err := providerfactory.NewProviders(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "provider error: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, slot := range appconfig.Slots {
		if *only != "" && !strings.EqualFold(*only, slot) {
			continue
		}
		b := cfg.Backends[slot]
		fmt.Printf("== %s (%s %s) ==\n", b.DisplayName(slot), b.Type, b.Model)
		res := probe(provs[slot], slot, *prompt, *timeout)
		report(res)
		if res.err != nil {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func probe(p providers.Provider, slot, prompt string, timeout time.Duration) probeResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	reply, err := p.Complete(ctx, providers.CompletionRequest{Prompt: prompt, MaxTokens: 64})
	return probeResult{slot: slot, name: p.Name(), elapsed: time.Since(start), reply: reply, err: err}
}

func report(res probeResult) {
	fmt.Printf("Elapsed: %s\n", res.elapsed.Round(time.Millisecond))
	if res.err != nil {
		kind := "error"
		switch {
		case errors.Is(res.err, providers.ErrTimeout):
			kind = "timeout"
		case errors.Is(res.err, providers.ErrEmptyResponse):
			kind = "empty"
		case errors.Is(res.err, providers.ErrTransport):
			kind = "transport"
		}
		fmt.Printf("Status: %s\nError: %v\n\n", kind, res.err)
		return
	}
	fmt.Printf("Status: ok\nReply: %s\n\n", util.TruncateRunes(strings.TrimSpace(res.reply), 200))
}
