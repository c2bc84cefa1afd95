package workflow

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// Specialist 是一个具名角色：指令、可用工具，以及由 Registry 持有的交接边。
// 构建完成后不可变，不保存任何会话状态。
type Specialist struct {
	Name               string
	HandoffDescription string
	Instructions       string
	// Model overrides the runtime's default model when set.
	Model string
	Tools []Tool
}

// Tool returns the specialist's tool with the given name.
func (s *Specialist) Tool(name string) (Tool, bool) {
	for _, t := range s.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// HandoffToolName is the function name advertised to the model for a handoff
// to the named specialist, e.g. "transfer_to_ad_copywriter".
func HandoffToolName(name string) string {
	var b strings.Builder
	b.WriteString("transfer_to_")
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// RegistryBuilder collects specialists and their handoff edges at configuration time.
type RegistryBuilder struct {
	entry *Specialist
	order []*Specialist
	edges map[string][]string
	err   error
}

// NewRegistryBuilder starts a registry whose entry (triage) specialist is entry.
func NewRegistryBuilder(entry *Specialist) *RegistryBuilder {
	b := &RegistryBuilder{edges: make(map[string][]string)}
	if entry == nil || entry.Name == "" {
		b.err = fmt.Errorf("%w: entry specialist requires a name", ErrInvalidSpecialist)
		return b
	}
	b.entry = entry
	return b
}

// Register adds s with its allowed handoff targets. The entry specialist is
// registered the same way to declare its outgoing edges.
func (b *RegistryBuilder) Register(s *Specialist, targets ...*Specialist) *RegistryBuilder {
	if b.err != nil {
		return b
	}
	if s == nil || s.Name == "" {
		b.err = fmt.Errorf("%w: specialist requires a name", ErrInvalidSpecialist)
		return b
	}
	if _, ok := b.edges[s.Name]; ok {
		b.err = fmt.Errorf("%w: %q", ErrDuplicateSpecialist, s.Name)
		return b
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == nil || t.Name == "" {
			b.err = fmt.Errorf("%w: handoff target of %q requires a name", ErrInvalidSpecialist, s.Name)
			return b
		}
		if !slices.Contains(names, t.Name) {
			names = append(names, t.Name)
		}
	}
	b.order = append(b.order, s)
	b.edges[s.Name] = names
	return b
}

// Build validates the handoff graph and freezes it.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	r := &Registry{
		entry:       b.entry,
		specialists: make(map[string]*Specialist, len(b.order)+1),
		edges:       make(map[string][]string, len(b.order)+1),
	}
	if _, ok := b.edges[b.entry.Name]; !ok {
		b.order = append([]*Specialist{b.entry}, b.order...)
		b.edges[b.entry.Name] = nil
	}
	for _, s := range b.order {
		if s.Name == b.entry.Name && s != b.entry {
			return nil, fmt.Errorf("%w: %q shadows the entry specialist", ErrDuplicateSpecialist, s.Name)
		}
		r.specialists[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	for _, s := range b.order {
		targets := b.edges[s.Name]
		for _, t := range targets {
			if _, ok := r.specialists[t]; !ok {
				return nil, fmt.Errorf("%w: %q -> %q", ErrDanglingHandoff, s.Name, t)
			}
		}
		if s.Name != b.entry.Name && !slices.Contains(targets, b.entry.Name) {
			return nil, fmt.Errorf("%w: %q", ErrMissingReturnEdge, s.Name)
		}
		r.edges[s.Name] = slices.Clone(targets)
	}
	return r, nil
}

// Registry is the immutable specialist graph.
type Registry struct {
	entry       *Specialist
	specialists map[string]*Specialist
	edges       map[string][]string
	names       []string
}

func (r *Registry) Entry() *Specialist { return r.entry }

func (r *Registry) Get(name string) (*Specialist, bool) {
	s, ok := r.specialists[name]
	return s, ok
}

// Contains reports whether s is the registered specialist of that name.
func (r *Registry) Contains(s *Specialist) bool {
	if s == nil {
		return false
	}
	got, ok := r.specialists[s.Name]
	return ok && got == s
}

// Names lists specialists in registration order, entry first.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Handoffs returns the specialists name may hand off to.
func (r *Registry) Handoffs(name string) []*Specialist {
	targets := r.edges[name]
	out := make([]*Specialist, 0, len(targets))
	for _, t := range targets {
		out = append(out, r.specialists[t])
	}
	return out
}

func (r *Registry) CanHandoff(from, to string) bool {
	return slices.Contains(r.edges[from], to)
}
