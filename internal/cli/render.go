// internal/cli/render.go
package concilium

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwiater/concilium/internal/markdown"
)

// renderCmd converts model output to HTML the same way the server does.
var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render Markdown to HTML with the renderer cascade",
	Long:  `Render a Markdown file (or stdin when no file is given) to sanitized HTML, falling back to an escaped <pre> block when no renderer produces visible text.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var src []byte
		var err error
		if len(args) == 1 && args[0] != "-" {
			src, err = os.ReadFile(args[0])
		} else {
			src, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), markdown.Render(string(src)))
		return err
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
