package render

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Verify checks that rs holds a structurally valid PDF with at least one
// page. Rendering can silently produce an empty or truncated document when
// the frontend fails mid-pagination; this catches it before the bytes leave
// the pipeline.
func Verify(rs io.ReadSeeker) error {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return fmt.Errorf("render: invalid pdf: %w", err)
	}
	if ctx.PageCount < 1 {
		return fmt.Errorf("render: pdf has no pages")
	}
	return nil
}
