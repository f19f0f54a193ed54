// Package prompt assembles staging prompts from typed templates.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

var (
	// ErrNoPrompt means none of style, custom style or instructions was given.
	ErrNoPrompt = errors.New("no style, custom style or instructions provided")

	// ErrUnknownStyle means the style identifier is not in the catalog.
	ErrUnknownStyle = errors.New("unknown style")

	// ErrUnknownCustomStyle means the custom style has not been registered.
	ErrUnknownCustomStyle = errors.New("unknown custom style")

	// ErrInvalidTemplate means a template failed to parse or execute.
	ErrInvalidTemplate = errors.New("invalid prompt template")
)

// Data is the typed value templates execute against. A template that names a
// field not declared here fails at registration.
type Data struct {
	RoomType    string
	Environment string
	Style       string
	ColorScheme string
}

// Input carries the prompt-relevant parts of a generation request.
type Input struct {
	StyleID       string
	CustomStyleID string
	RoomType      string
	Environment   models.Environment
	Instructions  string
	FurnitureMode models.FurnitureMode
	Dimensions    *models.Dimensions
	ColorScheme   string
	TextToImage   bool
}

// InputFromRequest extracts the prompt input from a generation request.
func InputFromRequest(req *models.GenerationRequest) Input {
	return Input{
		StyleID:       req.StyleID,
		CustomStyleID: req.CustomStyleID,
		RoomType:      req.RoomType,
		Environment:   req.Environment,
		Instructions:  req.Instructions,
		FurnitureMode: req.FurnitureMode,
		Dimensions:    req.Dimensions,
		ColorScheme:   req.ColorScheme,
		TextToImage:   req.TextToImage(),
	}
}

// CustomStyle is a user-defined template.
type CustomStyle struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Template string `json:"template"`
}

// Builder resolves styles and renders prompts. It is safe for concurrent use.
type Builder struct {
	mu      sync.RWMutex
	styles  map[string]*compiledStyle
	custom  map[string]*template.Template
	generic map[models.Environment]*template.Template
}

type compiledStyle struct {
	style     Style
	scaffolds map[models.Environment]*template.Template
}

// NewBuilder compiles the given style catalog. A nil catalog uses DefaultStyles.
func NewBuilder(styles []Style) (*Builder, error) {
	if styles == nil {
		styles = DefaultStyles()
	}

	b := &Builder{
		styles:  make(map[string]*compiledStyle, len(styles)),
		custom:  make(map[string]*template.Template),
		generic: make(map[models.Environment]*template.Template, len(genericScaffolds)),
	}

	for env, src := range genericScaffolds {
		t, err := compile("generic-"+string(env), src)
		if err != nil {
			return nil, err
		}
		b.generic[env] = t
	}

	for _, s := range styles {
		cs := &compiledStyle{style: s, scaffolds: make(map[models.Environment]*template.Template, 3)}
		for _, env := range []models.Environment{models.EnvironmentInterior, models.EnvironmentExterior, models.EnvironmentCommercial} {
			src := s.Scaffold(env)
			if src == "" {
				continue
			}
			t, err := compile(s.ID+"-"+string(env), src)
			if err != nil {
				return nil, fmt.Errorf("style %s: %w", s.ID, err)
			}
			cs.scaffolds[env] = t
		}
		b.styles[s.ID] = cs
	}

	return b, nil
}

// compile parses src and dry-runs it against Data so misspelled fields fail
// here rather than rendering an empty string later.
func compile(name, src string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, Data{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return t, nil
}

// Styles returns the catalog sorted by ID.
func (b *Builder) Styles() []Style {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Style, 0, len(b.styles))
	for _, cs := range b.styles {
		out = append(out, cs.style)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasStyle reports whether id is a catalog style.
func (b *Builder) HasStyle(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.styles[id]
	return ok
}

// RegisterCustomStyle compiles and stores a custom style, replacing any
// existing style with the same ID.
func (b *Builder) RegisterCustomStyle(cs CustomStyle) error {
	if strings.TrimSpace(cs.ID) == "" {
		return errors.New("custom style id is required")
	}
	if strings.TrimSpace(cs.Template) == "" {
		return fmt.Errorf("%w: empty template", ErrInvalidTemplate)
	}
	t, err := compile("custom-"+cs.ID, cs.Template)
	if err != nil {
		return fmt.Errorf("custom style %s: %w", cs.ID, err)
	}

	b.mu.Lock()
	b.custom[cs.ID] = t
	b.mu.Unlock()
	return nil
}

// Resolve checks that in can be turned into a prompt without rendering it.
func (b *Builder) Resolve(in Input) error {
	_, _, err := b.base(in)
	return err
}

// Build renders the prompt. The base template is chosen in the order custom
// style, named style, generic scaffold (instructions only). Furniture mode,
// color scheme, instructions and dimension hints are appended in that order.
func (b *Builder) Build(in Input) (string, error) {
	t, data, err := b.base(in)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(buf.String()))

	if !in.TextToImage {
		sb.WriteString(" Keep the original architecture, walls, windows, floor and camera perspective unchanged.")
	}

	switch in.FurnitureMode {
	case models.FurniturePreserve:
		sb.WriteString(" Keep the existing furniture in place and restyle the decor around it.")
	case models.FurnitureEmpty:
		sb.WriteString(" Remove all furniture and decor, leaving the space empty and clean.")
	case models.FurnitureReplace:
		if !in.TextToImage {
			sb.WriteString(" Replace the existing furniture with new pieces in this style.")
		}
	}

	if cs := strings.TrimSpace(in.ColorScheme); cs != "" {
		sb.WriteString(" Use a ")
		sb.WriteString(cs)
		sb.WriteString(" color scheme.")
	}

	if instr := strings.TrimSpace(in.Instructions); instr != "" {
		sb.WriteString("\n\nAdditional instructions: ")
		sb.WriteString(instr)
	}

	if d := in.Dimensions; d != nil && d.Width > 0 && d.Height > 0 {
		fmt.Fprintf(&sb, "\n\nOutput size: %dx%d pixels (aspect ratio %s).", d.Width, d.Height, aspectRatio(d.Width, d.Height))
	}

	return sb.String(), nil
}

func (b *Builder) base(in Input) (*template.Template, Data, error) {
	env := in.Environment
	if env == "" || !env.Valid() {
		env = models.EnvironmentInterior
	}
	data := Data{
		RoomType:    HumanizeRoomType(in.RoomType, env),
		Environment: string(env),
		ColorScheme: strings.TrimSpace(in.ColorScheme),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if in.CustomStyleID != "" {
		t, ok := b.custom[in.CustomStyleID]
		if !ok {
			return nil, data, fmt.Errorf("%w: %s", ErrUnknownCustomStyle, in.CustomStyleID)
		}
		data.Style = in.CustomStyleID
		return t, data, nil
	}

	if in.StyleID != "" {
		cs, ok := b.styles[in.StyleID]
		if !ok {
			return nil, data, fmt.Errorf("%w: %s", ErrUnknownStyle, in.StyleID)
		}
		data.Style = cs.style.Name
		if t, ok := cs.scaffolds[env]; ok {
			return t, data, nil
		}
		if t, ok := cs.scaffolds[models.EnvironmentInterior]; ok {
			return t, data, nil
		}
		return nil, data, fmt.Errorf("%w: style %s has no scaffold", ErrInvalidTemplate, in.StyleID)
	}

	if strings.TrimSpace(in.Instructions) != "" {
		return b.generic[env], data, nil
	}

	return nil, data, ErrNoPrompt
}

// HumanizeRoomType turns "living_room" into "living room". An empty room type
// becomes a generic noun for the environment.
func HumanizeRoomType(roomType string, env models.Environment) string {
	rt := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(roomType))
	if rt != "" {
		return strings.ToLower(rt)
	}
	switch env {
	case models.EnvironmentExterior:
		return "outdoor space"
	case models.EnvironmentCommercial:
		return "commercial space"
	default:
		return "room"
	}
}

func aspectRatio(w, h int) string {
	g := gcd(w, h)
	return fmt.Sprintf("%d:%d", w/g, h/g)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
