// Package testutil provides fixtures and capability fakes for potholerec tests.
package testutil

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// ConfigProject returns a project holding .potholerec/config.yaml with body.
func ConfigProject(body string) map[string]string {
	return map[string]string{
		".potholerec/config.yaml": body,
	}
}

// NMEAProject returns a project holding a recorded NMEA log at gps.nmea.
func NMEAProject(sentences ...string) map[string]string {
	var body string
	for _, s := range sentences {
		body += s + "\r\n"
	}
	return map[string]string{"gps.nmea": body}
}

// Frame returns a w x h frame filled with c.
func Frame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Gray is a mid-gray opaque color for frames.
var Gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}
