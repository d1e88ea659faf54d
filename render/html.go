// ABOUTME: HTML rendering of run reports via goldmark over the markdown renderer.
// ABOUTME: Used by the web server's report.html endpoint.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389-research/conveyor/engine"
)

// md converts markdown to HTML with table support enabled, since the report
// body is mostly one table.
var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders a report as an HTML fragment by converting the markdown form.
func HTML(report *engine.Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(report)), &buf); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}
	return buf.Bytes(), nil
}
