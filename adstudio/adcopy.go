package adstudio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"voice_ad_assistant/workflow"
)

const maxFileStem = 50

// AdCopy is the three-part copy produced by the copywriter.
type AdCopy struct {
	Title     string `json:"title" jsonschema:"the ad headline"`
	Subtitle  string `json:"subtitle" jsonschema:"a supporting subtitle, may be empty"`
	Paragraph string `json:"paragraph" jsonschema:"the body paragraph of the ad"`
}

// Text is the form stored in the shared context: one part per line.
func (c AdCopy) Text() string {
	return c.Title + "\n" + c.Subtitle + "\n" + c.Paragraph
}

func (c AdCopy) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + c.Title + "\n\n")
	if c.Subtitle != "" {
		b.WriteString("## " + c.Subtitle + "\n\n")
	}
	b.WriteString(c.Paragraph + "\n")
	return b.String()
}

// ParseAdCopy reverses Text. The paragraph keeps any further line breaks.
func ParseAdCopy(text string) AdCopy {
	parts := strings.SplitN(text, "\n", 3)
	var c AdCopy
	c.Title = parts[0]
	if len(parts) > 1 {
		c.Subtitle = parts[1]
	}
	if len(parts) > 2 {
		c.Paragraph = parts[2]
	}
	return c
}

// SafeFileStem keeps letters, digits, space, '_' and '-' from title, replaces
// anything else with '_' and truncates to 50 characters.
func SafeFileStem(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if n == maxFileStem {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		n++
	}
	if b.Len() == 0 {
		return "ad_copy"
	}
	return b.String()
}

// RenderHTML converts ad copy markdown to HTML.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Digest compacts whitespace and cuts text to at most limit bytes on a rune
// boundary.
func Digest(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	if len(joined) <= limit {
		return joined
	}
	cut := joined[:limit]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

var errBlankAdCopy = errors.New("ad copy needs a non-empty title and paragraph")

// CopyWriter saves ad copy as markdown files under a directory.
type CopyWriter struct {
	dir    string
	logger *zap.Logger
}

func NewCopyWriter(dir string, logger *zap.Logger) *CopyWriter {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CopyWriter{dir: dir, logger: logger.With(zap.String("component", "adcopy"))}
}

// Save writes c to <dir>/<safe title>.md and returns the absolute path.
func (w *CopyWriter) Save(c AdCopy) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", err
	}
	path, err := filepath.Abs(filepath.Join(w.dir, SafeFileStem(c.Title)+".md"))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(c.Markdown()), 0o644); err != nil {
		return "", err
	}
	w.logger.Info("ad copy saved", zap.String("path", path))
	return path, nil
}

// Tool exposes Save to the copywriter as save_ad_copy_to_markdown. The copy
// lands in the shared context before the file is written.
func (w *CopyWriter) Tool() workflow.Tool {
	return workflow.MustNewFuncTool(
		"save_ad_copy_to_markdown",
		"Saves the provided ad copy (title, subtitle, paragraph) to a Markdown file named after the title. Returns a message indicating success or failure.",
		func(_ context.Context, tc *workflow.ToolContext, c AdCopy) (string, error) {
			if tc.Shared == nil {
				return "", errors.New("no shared context")
			}
			if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Paragraph) == "" {
				return "", errBlankAdCopy
			}
			tc.Shared.AdCopy = c.Text()
			path, err := w.Save(c)
			if err != nil {
				return "", fmt.Errorf("saving ad copy to markdown: %w", err)
			}
			tc.Artifacts.Add(path)
			return "Ad copy successfully saved to " + path, nil
		})
}
