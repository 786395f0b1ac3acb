package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// printer writes either a JSON document or human text, depending on
// --format.
type printer struct {
	format string
	out    io.Writer
	err    io.Writer
}

func newPrinter(cmd *cobra.Command, opts *RootOptions) *printer {
	return &printer{format: opts.Format, out: cmd.OutOrStdout(), err: cmd.ErrOrStderr()}
}

func (p *printer) json() bool { return p.format == "json" }

// emit writes v as JSON, or calls text when the format is text.
func (p *printer) emit(v any, text func(w io.Writer)) error {
	if !p.json() {
		text(p.out)
		return nil
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// warn goes to stderr so JSON on stdout stays parseable.
func (p *printer) warn(msg string) {
	fmt.Fprintf(p.err, "warning: %s\n", msg)
}
