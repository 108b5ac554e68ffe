package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xtxerr/tplot/internal/render"
)

// PlotOptions holds the flags of the plot command.
type PlotOptions struct {
	Outputs []string
	Format  string
	Width   float64
	Height  float64
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotOptions{}

	cmd := &cobra.Command{
		Use:   "plot <name|pattern>...",
		Short: "Plot variables as stacked panels",
		Long: `Plot one panel per variable, stacked on a shared time axis.

Each --output is written in the format of its extension (png, jpg, tif,
svg, pdf, eps); a path without extension gets .png. "-o -" writes the
figure to stdout in --image-format. Without --output the figure is drawn
and discarded, which checks that it renders.`,
		Args:          minimumArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: rootOpts.reading(func(cmd *cobra.Command, args []string, st *State) error {
			return runPlot(rootOpts, opts, args, cmd, st)
		}),
	}

	cmd.Flags().StringArrayVarP(&opts.Outputs, "output", "o", nil, "output file (repeatable, - for stdout)")
	cmd.Flags().StringVar(&opts.Format, "image-format", "png", "image format for stdout ("+strings.Join(render.SupportedFormats(), "|")+")")
	cmd.Flags().Float64Var(&opts.Width, "width", 0, "figure width in pixels")
	cmd.Flags().Float64Var(&opts.Height, "height", 0, "figure height in pixels")
	return cmd
}

func runPlot(rootOpts *RootOptions, opts *PlotOptions, names []string, cmd *cobra.Command, st *State) error {
	req := render.Request{Width: opts.Width, Height: opts.Height}
	for _, o := range opts.Outputs {
		if o != "-" {
			req.Outputs = append(req.Outputs, o)
			continue
		}
		if req.Writer != nil {
			return usageErr(fmt.Errorf("stdout can only be given once"))
		}
		w := cmd.OutOrStdout()
		if isTerminal(w) {
			return NewExitError(ExitCommandError, "refusing to write an image to a terminal")
		}
		req.Writer = w
		req.Format = opts.Format
	}

	paths, err := st.Renderer.Plot(cmd.Context(), names, req)
	if err != nil {
		return err
	}
	if req.Writer != nil {
		return nil
	}

	out := rootOpts.formatter(cmd)
	out.VerboseLog("plotted %d variables", len(names))
	return out.Print(map[string]interface{}{"outputs": paths}, func(w io.Writer) error {
		for _, p := range paths {
			if _, err := fmt.Fprintf(w, "wrote %s\n", p); err != nil {
				return err
			}
		}
		return nil
	})
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
