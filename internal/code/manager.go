package code

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"loom/internal/branch"
	"loom/internal/jsx"
	"loom/internal/models"
	"loom/internal/style"
)

// Notifier surfaces code application errors to the user.
type Notifier interface {
	Notify(ctx context.Context, ce branch.CodeError)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, ce branch.CodeError)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ce branch.CodeError) {
	f(ctx, ce)
}

// Manager applies actions to the source of the registered branches. Write
// cycles run one at a time.
type Manager struct {
	branches *branch.Registry
	builder  *Builder
	parser   *jsx.Parser
	notifier Notifier
	log      *slog.Logger

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets the error notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithParser shares a parser with other components.
func WithParser(p *jsx.Parser) Option {
	return func(m *Manager) { m.parser = p }
}

// NewManager creates a manager over branches.
func NewManager(branches *branch.Registry, opts ...Option) *Manager {
	m := &Manager{branches: branches}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "code")
	if m.parser == nil {
		m.parser = jsx.NewParser()
	}
	m.builder = NewBuilder(style.NewTranslator(m.log))
	return m
}

// Write applies action to source. Failures are notified, recorded on the
// affected branch and returned.
func (m *Manager) Write(ctx context.Context, action models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(ctx, action); err != nil {
		m.report(ctx, action, err)
		return err
	}
	return nil
}

func (m *Manager) write(ctx context.Context, action models.Action) error {
	switch a := action.(type) {
	case models.WriteCode:
		return m.writeCode(ctx, a)
	case models.InsertImage:
		if err := m.saveImage(ctx, a); err != nil {
			return err
		}
	}

	diffs, groups, err := m.diffs(ctx, action)
	if err != nil {
		return err
	}
	if err := WriteDiffs(ctx, diffs, groups); err != nil {
		return err
	}
	for _, d := range diffs {
		if d.Changed() {
			m.log.Debug("wrote code diff", "action", action.Kind(), "path", d.Path)
		}
	}
	return nil
}

// Diffs computes the diffs action would write without writing them.
func (m *Manager) Diffs(ctx context.Context, action models.Action) ([]models.CodeDiff, error) {
	if a, ok := action.(models.WriteCode); ok {
		return a.Diffs, nil
	}
	diffs, _, err := m.diffs(ctx, action)
	return diffs, err
}

func (m *Manager) diffs(ctx context.Context, action models.Action) ([]models.CodeDiff, *FileToRequests, error) {
	reqs, err := m.builder.BuildRequests(action)
	if err != nil {
		return nil, nil, err
	}
	groups, err := GroupByFile(ctx, m.branches, reqs)
	if err != nil {
		return nil, nil, err
	}
	diffs, err := ProcessGroupedRequests(ctx, m.parser, groups, m.log)
	if err != nil {
		return nil, nil, err
	}
	return diffs, groups, nil
}

func (m *Manager) writeCode(ctx context.Context, a models.WriteCode) error {
	ed, err := m.editor(a.BranchID)
	if err != nil {
		return err
	}
	for _, d := range a.Diffs {
		if err := ed.WriteFile(ctx, d.Path, []byte(d.Generated)); err != nil {
			return fmt.Errorf("writing %s: %w", d.Path, err)
		}
	}
	return nil
}

// saveImage writes the image bytes into the public image directory of the
// target's branch.
func (m *Manager) saveImage(ctx context.Context, a models.InsertImage) error {
	if a.Image.Content == "" {
		return nil
	}
	ed, err := m.editor(branchOf(a.Targets))
	if err != nil {
		return err
	}
	data, err := DecodeImage(a.Image.Content)
	if err != nil {
		return fmt.Errorf("decoding image %s: %w", a.Image.FileName, err)
	}
	dest := path.Join(ImageDir, path.Base(a.Image.FileName))
	if err := ed.WriteFile(ctx, dest, data); err != nil {
		return fmt.Errorf("writing image %s: %w", dest, err)
	}
	return nil
}

// editor returns the editor of branch id.
func (m *Manager) editor(id string) (branch.Editor, error) {
	b, err := m.branches.Get(id)
	if err != nil {
		return nil, err
	}
	if b.Editor == nil {
		return nil, fmt.Errorf("%w: branch %q has no editor", branch.ErrNoBranch, b.ID)
	}
	return b.Editor, nil
}

// DecodeImage decodes base64 image content, accepting data URLs.
func DecodeImage(content string) ([]byte, error) {
	if strings.HasPrefix(content, "data:") {
		if i := strings.Index(content, ","); i >= 0 {
			content = content[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(content)
}

func (m *Manager) report(ctx context.Context, action models.Action, err error) {
	m.log.Error("failed to write code", "action", action.Kind(), "error", err)

	b, gerr := m.branches.Get(ActionBranch(action))
	if gerr != nil {
		return
	}
	ce := b.RecordError(action.Kind(), err)
	if m.notifier != nil {
		m.notifier.Notify(ctx, ce)
	}
}

// ActionBranch returns the branch an action targets, or "" for the active
// branch.
func ActionBranch(action models.Action) string {
	switch a := action.(type) {
	case models.UpdateStyle:
		for _, t := range a.Targets {
			if t.BranchID != "" {
				return t.BranchID
			}
		}
		return ""
	case models.InsertElement:
		return branchOf(a.Targets)
	case models.RemoveElement:
		return branchOf(a.Targets)
	case models.MoveElement:
		return branchOf(a.Targets)
	case models.EditText:
		return branchOf(a.Targets)
	case models.GroupElements:
		return a.Parent.BranchID
	case models.UngroupElements:
		return a.Parent.BranchID
	case models.InsertImage:
		return branchOf(a.Targets)
	case models.RemoveImage:
		return branchOf(a.Targets)
	case models.WriteCode:
		return a.BranchID
	default:
		return ""
	}
}
