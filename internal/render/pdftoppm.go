package render

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
)

// Pdftoppm rasterizes pages by shelling out to the poppler pdftoppm tool.
type Pdftoppm struct {
	path string
}

// DetectPdftoppm looks for pdftoppm on PATH. A nil, nil return means the
// tool is not installed and rendering stays unavailable.
func DetectPdftoppm() (*Pdftoppm, error) {
	path, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, nil
	}
	return &Pdftoppm{path: path}, nil
}

// NewPdftoppm wraps an explicit binary path.
func NewPdftoppm(path string) (*Pdftoppm, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pdftoppm not usable at %s: %w", path, err)
	}
	return &Pdftoppm{path: path}, nil
}

// RenderPage writes raw to a temp file and renders the requested page as PNG
// at 72*scale DPI.
func (p *Pdftoppm) RenderPage(ctx context.Context, raw []byte, page int, scale float64) ([]byte, error) {
	dir, err := os.MkdirTemp("", "pepedot-render-")
	if err != nil {
		return nil, fmt.Errorf("creating render scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "plan.pdf")
	if err := os.WriteFile(src, raw, 0o600); err != nil {
		return nil, fmt.Errorf("writing render input: %w", err)
	}

	dpi := int(math.Round(72 * scale))
	if dpi < 1 {
		dpi = 72
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.path,
		"-png",
		"-f", fmt.Sprint(page),
		"-l", fmt.Sprint(page),
		"-r", fmt.Sprint(dpi),
		src,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
