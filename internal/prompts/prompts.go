// Package prompts renders the oracle request and feedback templates.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
)

// #region templates

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
	"quoteJoin": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return strings.Join(quoted, ", ")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// Render executes the named template (file name without extension).
func Render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// must is for the typed helpers below, whose data always matches.
func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}

// #endregion templates

// #region requests

// RetrieveObjects asks for the object list and a rewritten description.
func RetrieveObjects(description string) string {
	return must(Render("retrieve_objects", map[string]any{
		"Description": description,
		"Permitted":   catalog.PermissionList(),
	}))
}

// ExtractLayout asks for objects, absolute positions and relative positions.
// objects is the raw list text from the retrieval stage.
func ExtractLayout(description, objects string) string {
	return must(Render("extract_layout", map[string]any{
		"Description": description,
		"Objects":     objects,
	}))
}

// AssignPlacement asks for coordinates of every object.
func AssignPlacement(description, objects, coordinates, relations string) string {
	return must(Render("assign_placement", map[string]any{
		"Description": description,
		"Objects":     objects,
		"Coordinates": coordinates,
		"Relations":   relations,
	}))
}

// CheckPlacement asks the oracle to audit a placement against its description.
func CheckPlacement(description, positions string) string {
	return must(Render("check_placement", map[string]any{
		"Description": description,
		"Positions":   positions,
	}))
}

// CheckDescription asks the oracle to audit a description on its own.
func CheckDescription(description string) string {
	return must(Render("check_description", map[string]any{
		"Description": strings.TrimSpace(description),
		"Items":       catalog.ItemList(),
	}))
}

// CodeGen asks for the scene-building script body.
func CodeGen(description, objects, positions, guidance string) string {
	return must(Render("code_gen", map[string]any{
		"Description": description,
		"Objects":     objects,
		"Positions":   positions,
		"Guidance":    guidance,
		"Snippet":     catalog.PlacementSnippet,
	}))
}

// Evolve asks for a rewritten description using method.
func Evolve(description, method string) string {
	return must(Render("evolve", map[string]any{
		"Description": description,
		"Method":      method,
		"Items":       catalog.ItemList(),
	}))
}

// WrapScript embeds an already indented script body in the runnable class.
func WrapScript(indentedBody string) string {
	return must(Render("script_wrapper", map[string]any{"Body": indentedBody}))
}

// #endregion requests

// #region feedback

// FeedbackFunc turns joined violation reasons into a follow-up request.
type FeedbackFunc func(reasons string) string

func feedback(name string) FeedbackFunc {
	return func(reasons string) string {
		return must(Render(name, map[string]any{"Feedback": reasons}))
	}
}

var (
	PlacementFeedback = feedback("feedback_placement")
	CodeFeedback      = feedback("feedback_code")
	EvolveFeedback    = feedback("feedback_evolve")
)

// #endregion feedback
