package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoOutput is returned when the converter ran but produced no file.
var ErrNoOutput = errors.New("converted file not found")

// Converter turns a legacy .doc file into a .docx next to it and returns
// the absolute path of the result.
type Converter interface {
	Convert(ctx context.Context, src string) (string, error)
}

// SofficeConverter runs LibreOffice in headless mode.
type SofficeConverter struct {
	Path    string
	Timeout time.Duration
}

// NewSofficeConverter creates a converter for the given soffice binary.
func NewSofficeConverter(path string, timeout time.Duration) *SofficeConverter {
	if path == "" {
		path = "soffice"
	}
	return &SofficeConverter{Path: path, Timeout: timeout}
}

// ConvertedName returns the .docx path produced for src.
func ConvertedName(src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(filepath.Dir(src), base+".docx")
}

// Convert blocks until soffice exits. Its output is discarded.
func (c *SofficeConverter) Convert(ctx context.Context, src string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	outDir := filepath.Dir(src)
	cmd := exec.CommandContext(ctx, c.Path, "--headless", "--convert-to", "docx", "--outdir", outDir, src)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("soffice %s: %w", filepath.Base(src), err)
	}

	out := ConvertedName(src)
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(out), ErrNoOutput)
	}
	return out, nil
}

// upToDate reports whether dst exists and is not older than src.
func upToDate(src, dst string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return !dstInfo.ModTime().Before(srcInfo.ModTime())
}
