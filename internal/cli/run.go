// internal/cli/run.go
package concilium

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/pipeline"
	"github.com/mwiater/concilium/internal/tui"
	"github.com/mwiater/concilium/internal/util"
)

type runOptions struct {
	mode     string
	files    []string
	minChars int
	maxChars int
	plain    bool
	merge    bool
	outDir   string
}

var runOpts runOptions

// runCmd runs one pipeline from the terminal.
var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run a pipeline locally and show its progress",
	Long: `Run the hierarchical or atomic pipeline against the configured backends.
Reference documents passed with --file are copied before extraction, so the
originals are left in place.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		instruction := strings.TrimSpace(strings.Join(args, " "))
		if instruction == "" {
			return fmt.Errorf("instruction is required")
		}

		stopSignals := logging.ObserveSignals()
		defer stopSignals()

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		staged, cleanup, err := stageFiles(runOpts.files)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := pipeline.Request{
			Instruction: instruction,
			Files:       staged,
			Mode:        pipeline.ParseMode(runOpts.mode),
			MinChars:    runOpts.minChars,
			MaxChars:    runOpts.maxChars,
			Output:      pipeline.OutputRaw,
		}
		return executeRun(ctx, cmd.OutOrStdout(), a, req, runOpts)
	},
}

func executeRun(ctx context.Context, out io.Writer, a *app, req pipeline.Request, opts runOptions) error {
	var (
		outcome pipeline.Outcome
		err     error
	)
	if opts.plain {
		outcome = a.orch.Run(ctx, req, plainSink(out, a.names()))
	} else {
		outcome, err = tui.Run(ctx, a.orch, a.names(), req)
		if err != nil {
			return err
		}
	}
	if outcome.State != pipeline.StateCompleted {
		return fmt.Errorf("run %s: %v", outcome.State, outcome.Err)
	}

	ids := []gateway.BackendID{gateway.Gemini}
	if outcome.Mode == pipeline.ModeAtomic {
		ids = gateway.Backends[:]
	}
	for _, id := range ids {
		if err := deliver(out, opts, a.gw.Name(id), string(id)+".md", outcome.Text(id), !opts.plain); err != nil {
			return err
		}
	}

	if !opts.merge || outcome.Mode != pipeline.ModeAtomic {
		return nil
	}
	merged := a.orch.Merge(ctx, "cli", pipeline.MergeRequest{
		Instruction: req.Instruction,
		Grok:        outcome.Text(gateway.Grok),
		Sonnet:      outcome.Text(gateway.Sonnet),
		Gemini:      outcome.Text(gateway.Gemini),
		MinChars:    req.MinChars,
		MaxChars:    req.MaxChars,
		Output:      pipeline.OutputRaw,
	}, plainSink(out, a.names()))
	if merged.State != pipeline.StateCompleted {
		return fmt.Errorf("merge %s: %v", merged.State, merged.Err)
	}
	backend := a.orch.Options().MergeBackend
	return deliver(out, opts, "Merge", "merge.md", merged.Text(backend), false)
}

// deliver writes text to <outDir>/<file> or, without an output directory,
// prints it when echo is set.
func deliver(out io.Writer, opts runOptions, title, file, text string, echo bool) error {
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(opts.outDir, file)
		if err := util.WriteFile(path, []byte(text)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s -> %s (%d palavras)\n", title, path, util.CountWords(text))
		return nil
	}
	if echo {
		fmt.Fprintf(out, "\n%s\n\n%s\n", color.New(color.Bold).Sprint(title), text)
	}
	return nil
}

// plainSink prints events as log-style lines.
func plainSink(out io.Writer, names [3]string) events.Sink {
	pct := color.New(color.FgCyan).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	heading := color.New(color.Bold).SprintFunc()
	titles := make(map[string]string, len(gateway.Backends))
	for i, id := range gateway.Backends {
		titles[id.SlotID()] = names[i]
	}

	return events.SinkFunc(func(e events.Event) error {
		if p := e.Pct(); p >= 0 {
			fmt.Fprintf(out, "%s %s\n", pct(fmt.Sprintf("[%3d%%]", p)), e.Message)
		}
		if e.PartialResult != nil {
			fmt.Fprintf(out, "\n%s\n\n%s\n\n", heading(titles[e.PartialResult.ID]), e.PartialResult.Content)
		}
		if e.FinalResult != nil {
			fmt.Fprintf(out, "\n%s (%d palavras)\n\n%s\n\n", heading("Merge"), e.FinalResult.WordCount, e.FinalResult.Content)
		}
		if e.IsError() {
			fmt.Fprintln(out, fail(e.Error))
		}
		return nil
	})
}

// stageFiles copies paths into a temporary directory. Context extraction
// deletes what it reads.
func stageFiles(paths []string) ([]string, func(), error) {
	if len(paths) == 0 {
		return nil, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "concilium-run-")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	staged := make([]string, 0, len(paths))
	for _, p := range paths {
		dst := filepath.Join(dir, filepath.Base(p))
		if err := copyFile(p, dst); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("stage %s: %w", p, err)
		}
		staged = append(staged, dst)
	}
	return staged, cleanup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.mode, "mode", "m", string(pipeline.ModeHierarchical), "pipeline mode: hierarchical or atomic")
	runCmd.Flags().StringSliceVarP(&runOpts.files, "file", "f", nil, "reference document (.pdf, .docx, .txt); repeatable")
	runCmd.Flags().IntVar(&runOpts.minChars, "min-chars", 0, "minimum characters requested from the models (default from config)")
	runCmd.Flags().IntVar(&runOpts.maxChars, "max-chars", 0, "maximum characters requested from the models (default from config)")
	runCmd.Flags().BoolVar(&runOpts.plain, "plain", false, "print progress lines instead of the interactive view")
	runCmd.Flags().BoolVar(&runOpts.merge, "merge", false, "consolidate atomic drafts with the merge backend")
	runCmd.Flags().StringVarP(&runOpts.outDir, "out", "o", "", "write outputs as markdown files into this directory")
	rootCmd.AddCommand(runCmd)
}
