package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/denisenanni/portfolio/internal/config"
	"github.com/denisenanni/portfolio/internal/content"
	"github.com/denisenanni/portfolio/internal/pipeline"
)

var (
	diagramLayout  string
	diagramContent string
	renderStatic   bool
	renderOut      string
	timelineHuman  bool
)

func init() {
	for _, c := range []*cobra.Command{renderCmd, timelineCmd} {
		c.Flags().StringVar(&diagramLayout, "layout", "", "Diagram layout: square or circle (default from content)")
		c.Flags().StringVar(&diagramContent, "content", "", "YAML content file (default: embedded content)")
	}
	renderCmd.Flags().BoolVar(&renderStatic, "static", false, "Render the final frame without animation")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Write to a file instead of stdout")
	timelineCmd.Flags().BoolVar(&timelineHuman, "human", false, "Print a table instead of JSON")

	rootCmd.AddCommand(renderCmd, timelineCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the pipeline diagram as SVG",
	Long: `Render the pipeline diagram as a standalone SVG document. The default
output animates itself with SMIL; --static draws the fully revealed diagram.

Example:
  portfolio render --layout circle -o pipeline.svg`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print one animation cycle",
	Long: `Print the operations of one animation cycle with their offsets. Timing
follows the PIPELINE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runTimeline,
}

// loadDiagram builds the diagram the subcommands work on, with the timing
// the server would use.
func loadDiagram() (*pipeline.Diagram, pipeline.Timing, error) {
	timing := config.Load().Timing
	if err := timing.Validate(); err != nil {
		return nil, timing, configError{err}
	}
	site, err := content.Load(diagramContent)
	if err != nil {
		return nil, timing, configError{err}
	}
	d, err := site.Diagram(diagramLayout)
	if err != nil {
		return nil, timing, configError{err}
	}
	return d, timing, nil
}

func runRender(cmd *cobra.Command, _ []string) error {
	d, timing, err := loadDiagram()
	if err != nil {
		return err
	}
	render := func(w io.Writer) error {
		if err := pipeline.RenderSVG(w, d, pipeline.RenderOptions{Animated: !renderStatic, Timing: timing}); err != nil {
			return fmt.Errorf("rendering diagram: %w", err)
		}
		return nil
	}

	if renderOut == "" {
		return render(cmd.OutOrStdout())
	}
	if err := writeFile(renderOut, render); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", renderOut)
	return nil
}

// createFile opens render output; replaced in tests.
var createFile = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

// writeFile runs write against a new file at path. A failed close is
// reported, since buffered data may not have reached the disk.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", cerr)
		}
	}()
	return write(f)
}

type timelineEntry struct {
	AtMS     int64   `json:"at_ms"`
	Kind     string  `json:"kind"`
	Index    int     `json:"index"`
	Fraction float64 `json:"fraction,omitempty"`
}

type timelineOutput struct {
	CycleMS int64           `json:"cycle_ms"`
	Ops     []timelineEntry `json:"ops"`
}

func runTimeline(cmd *cobra.Command, _ []string) error {
	d, timing, err := loadDiagram()
	if err != nil {
		return err
	}
	tl, err := pipeline.BuildTimeline(d, timing)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if timelineHuman {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tOP\tINDEX\tFRACTION")
		for _, op := range tl.Ops {
			frac := ""
			if op.Kind == pipeline.OpMoveIndicator {
				frac = fmt.Sprintf("%.2f", op.Fraction)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", op.At, op.Kind, op.Index, frac)
		}
		fmt.Fprintf(tw, "cycle\t%s\t\t\n", tl.Cycle)
		return tw.Flush()
	}

	res := timelineOutput{CycleMS: tl.Cycle.Milliseconds()}
	for _, op := range tl.Ops {
		res.Ops = append(res.Ops, timelineEntry{
			AtMS:     op.At.Milliseconds(),
			Kind:     op.Kind.String(),
			Index:    op.Index,
			Fraction: op.Fraction,
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
