package script

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
)

// #region guidance

//go:embed guidance
var builtinGuidance embed.FS

// Guidance maps a lower-cased object type to its loading instructions.
type Guidance map[string]string

// LoadGuidance reads every object/**/*.txt under fsys. Keys are the file
// base names without extension, lower-cased.
func LoadGuidance(fsys fs.FS) (Guidance, error) {
	files, err := doublestar.Glob(fsys, "object/**/*.txt")
	if err != nil {
		return nil, fmt.Errorf("glob guidance: %w", err)
	}
	g := make(Guidance, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read guidance %s: %w", f, err)
		}
		key := strings.ToLower(strings.TrimSuffix(path.Base(f), ".txt"))
		g[key] = strings.TrimSpace(string(data))
	}
	return g, nil
}

// LoadGuidanceDir reads guidance from a directory on disk. An empty dir
// selects the built-in set.
func LoadGuidanceDir(dir string) (Guidance, error) {
	if dir == "" {
		return DefaultGuidance()
	}
	return LoadGuidance(os.DirFS(dir))
}

// DefaultGuidance returns the built-in guidance set.
func DefaultGuidance() (Guidance, error) {
	sub, err := fs.Sub(builtinGuidance, "guidance")
	if err != nil {
		return nil, err
	}
	return LoadGuidance(sub)
}

// For returns the guidance for one placed object, ignoring its instance
// number.
func (g Guidance) For(name string) (string, bool) {
	s, ok := g[strings.ToLower(catalog.BaseName(name))]
	return s, ok
}

// #endregion guidance

// #region prompt-builder

// PromptBuilder renders the code-generation request.
type PromptBuilder struct {
	Guidance Guidance
}

// Build renders the request for description, the raw object list and the
// final placement. Guidance is included once per placed instance, in
// placement order.
func (b PromptBuilder) Build(description, objects string, positions []placement.Entry) (string, error) {
	var parts []string
	for _, p := range positions {
		if s, ok := b.Guidance.For(p.Name); ok {
			parts = append(parts, s)
		}
	}
	body, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal positions: %w", err)
	}
	return prompts.CodeGen(description, objects, string(body), strings.Join(parts, "\n")), nil
}

// #endregion prompt-builder
