package workflow

import (
	"strings"
	"sync"
)

// SharedContext carries artifacts between specialists of one session.
// An empty field means the artifact has not been produced yet.
type SharedContext struct {
	AdCopy      string `json:"ad_copy"`
	ImagePrompt string `json:"image_prompt"`
}

// Brief renders the artifacts produced so far for a specialist's prompt. It
// is empty while nothing has been produced.
func (c SharedContext) Brief() string {
	var parts []string
	if c.AdCopy != "" {
		parts = append(parts, "Current ad copy:\n"+c.AdCopy)
	}
	if c.ImagePrompt != "" {
		parts = append(parts, "Current image prompt:\n"+c.ImagePrompt)
	}
	return strings.Join(parts, "\n\n")
}

// Artifacts collects files written by tools during a turn, so a failed turn
// can report what was left on disk.
type Artifacts struct {
	mu    sync.Mutex
	paths []string
}

func (a *Artifacts) Add(path string) {
	if a == nil || path == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
}

func (a *Artifacts) Paths() []string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}
