package appconfig

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ShowConfig prints the current configuration summary. API keys are masked.
func ShowConfig(out io.Writer, cfg Config) {
	label := color.New(color.FgCyan).SprintFunc()
	heading := color.New(color.Bold).SprintFunc()

	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	fmt.Fprintln(out, heading("Current configuration:"))
	fmt.Fprintf(out, "  %s          %s\n", label("Listen:"), cfg.Listen)
	fmt.Fprintf(out, "  %s       %s (max %d MB)\n", label("Upload Dir:"), cfg.UploadDir, cfg.MaxUploadMB)
	fmt.Fprintf(out, "  %s         %s\n", label("Log File:"), cfg.LogFilePath())
	fmt.Fprintf(out, "  %s           %v\n", label("Debug:"), cfg.Debug)
	fmt.Fprintf(out, "  %s         %v\n", label("Metrics:"), cfg.Metrics)
	fmt.Fprintf(out, "  %s     %d..%d chars\n", label("Size Bounds:"), cfg.MinChars, cfg.MaxChars)
	fmt.Fprintf(out, "  %s   %s\n", label("Draft Timeout:"), cfg.DraftTimeout())
	fmt.Fprintf(out, "  %s   %s\n", label("Stage Timeout:"), cfg.StageTimeout())
	fmt.Fprintf(out, "  %s %d\n", label("Bound Max Tokens:"), cfg.BoundMaxTokens)
	fmt.Fprintf(out, "  %s   %s\n", label("Merge Backend:"), cfg.MergeBackend)
	fmt.Fprintf(out, "  %s   %d bytes\n", label("Stream Ceiling:"), cfg.StreamMaxBytes)
	if cfg.ContextTokenLimit > 0 {
		fmt.Fprintf(out, "  %s  %d tokens\n", label("Context Limit:"), cfg.ContextTokenLimit)
	}
	if cfg.PromptsDir != "" {
		fmt.Fprintf(out, "  %s     %s\n", label("Prompts Dir:"), cfg.PromptsDir)
	}
	switch cfg.Store.Type {
	case StoreRedis:
		fmt.Fprintf(out, "  %s           redis %s db=%d ttl=%s\n", label("Store:"), cfg.Store.RedisAddr, cfg.Store.RedisDB, ttlLabel(cfg))
	default:
		fmt.Fprintf(out, "  %s           %s ttl=%s\n", label("Store:"), cfg.Store.Type, ttlLabel(cfg))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, heading("Backends:"))
	for _, slot := range Slots {
		b, ok := cfg.Backends[slot]
		if !ok {
			fmt.Fprintf(out, "  %-7s (not configured)\n", slot)
			continue
		}
		fmt.Fprintf(out, "  %s %s\n", label(fmt.Sprintf("%-7s", slot)), b.DisplayName(slot))
		fmt.Fprintf(out, "          type=%s model=%s\n", b.Type, b.Model)
		if b.URL != "" {
			fmt.Fprintf(out, "          url=%s\n", b.URL)
		}
		fmt.Fprintf(out, "          apiKey=%s timeout=%s\n", MaskSecret(b.APIKey), b.RequestTimeout())
	}
}

// MaskSecret keeps the last four characters of a credential.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(unset)"
	case len(secret) <= 4:
		return "****"
	default:
		return strings.Repeat("*", 8) + secret[len(secret)-4:]
	}
}

func ttlLabel(cfg Config) string {
	if ttl := cfg.StoreTTL(); ttl > 0 {
		return ttl.String()
	}
	return "none"
}
