// Package script post-processes generated scene scripts and builds the
// code-generation request.
package script

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
)

// #region artifact

// Step is one recorded sanitizer change.
type Step struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Artifact keeps every intermediate text of one sanitizer run.
type Artifact struct {
	Raw       string   `json:"raw"`
	Extracted string   `json:"extracted"`
	Completed string   `json:"completed"`
	Repaired  string   `json:"repaired"`
	Added     []string `json:"added,omitempty"`
	History   []Step   `json:"history"`
}

// Code is the final script. Empty means the reply held no usable block.
func (a Artifact) Code() string { return a.Repaired }

// Empty reports whether extraction found nothing.
func (a Artifact) Empty() bool { return a.Repaired == "" }

// #endregion artifact

// #region sanitize

var (
	reLeadingNoise = regexp.MustCompile(`^(//.*|\n)+`)
	reConsoleWrite = regexp.MustCompile(`Console\.Write(Line)?`)
	reCountGuard   = regexp.MustCompile(`(if \([\w\d]+\.Count >(=?\s*\d+\s*)\))`)
	reModelPick    = regexp.MustCompile(`(DirectoryInfo [\w\d]+ = ([\w\d]+)(\[.*?\]);)`)
)

// Sanitize runs the ordered cleanup over an oracle reply. Every step leaves
// already-correct input unchanged.
func Sanitize(raw string) Artifact {
	a := Artifact{Raw: raw, History: []Step{{Name: "Original", Code: raw}}}
	if raw == "" {
		return a
	}

	a.Extracted = Extract(raw)
	if a.Extracted != raw {
		a.History = append(a.History, Step{Name: "Get code from response", Code: a.Extracted})
	}
	if a.Extracted == "" {
		return a
	}

	a.Completed, a.Added = Complete(a.Extracted)
	if len(a.Added) > 0 {
		a.History = append(a.History, Step{
			Name: "Added following code:\n" + strings.Join(a.Added, "\n\n"),
			Code: a.Completed,
		})
	}

	a.Repaired = Repair(a.Completed)
	if a.Repaired != a.Completed {
		a.History = append(a.History, Step{Name: "Fix invalid index", Code: a.Repaired})
	}
	return a
}

// Extract cuts the fenced csharp block out of a reply and de-indents it to
// the root declaration. It returns "" when the root declaration is absent.
func Extract(reply string) string {
	code := reply
	if i := strings.Index(code, catalog.CodeFence); i >= 0 {
		code = code[i+len(catalog.CodeFence):]
		if j := strings.Index(code, "```"); j >= 0 {
			code = code[:j]
		}
	}
	if !strings.Contains(code, catalog.RootDecl) {
		return ""
	}

	indent := -1
	var kept []string
	for _, l := range strings.Split(code, "\n") {
		if indent == -1 {
			if i := strings.Index(l, catalog.RootDecl); i >= 0 {
				indent = i
			}
		}
		if indent < 0 {
			continue
		}
		switch {
		case strings.TrimSpace(l) == "":
			if len(l) > indent {
				kept = append(kept, l[indent:])
			} else {
				kept = append(kept, "")
			}
		case strings.HasPrefix(l, strings.Repeat(" ", indent)):
			kept = append(kept, l[indent:])
		}
	}
	return strings.Join(kept, "\n")
}

// Complete injects missing boilerplate and fixes the script tail. It returns
// the new code and the blocks it added.
func Complete(code string) (string, []string) {
	var added []string
	code = reLeadingNoise.ReplaceAllString(code, "")

	if !strings.HasPrefix(code, catalog.Preamble) {
		code = catalog.Preamble + "\n\n" + dropPreambleLines(code)
		added = append(added, catalog.Preamble)
	}

	if !strings.Contains(code, catalog.RandomDecl) {
		pair := catalog.RandomDecl + "\n" + catalog.PhysicalRootDecl
		if next := strings.ReplaceAll(code, catalog.PhysicalRootDecl, pair); next != code {
			code = next
			added = append(added, pair)
		}
	}

	code = reConsoleWrite.ReplaceAllString(code, catalog.OutputWriter)

	if i := strings.LastIndex(code, catalog.TerminalCall); i >= 0 {
		code = code[:i+len(catalog.TerminalCall)]
	} else {
		code = strings.TrimRight(code, " \t\r\n") + "\n\n" + catalog.TerminalCall
		added = append(added, catalog.TerminalCall)
	}
	return code, added
}

var preambleLines = strings.Split(catalog.Preamble, "\n")

// dropPreambleLines removes a partial or respaced preamble from the top of
// code, along with the blank lines around it.
func dropPreambleLines(code string) string {
	lines := strings.Split(code, "\n")
	i := 0
	for ; i < len(lines); i++ {
		l := strings.TrimSpace(lines[i])
		if l != "" && !slices.Contains(preambleLines, l) {
			break
		}
	}
	return strings.Join(lines[i:], "\n")
}

// Repair rewrites dead count guards to "> 0" and fixed list indexes to a
// random pick.
func Repair(code string) string {
	for _, m := range reCountGuard.FindAllStringSubmatch(code, -1) {
		cond, num := m[1], m[2]
		if num != " 0" {
			fixed := strings.TrimSuffix(cond, num+")") + " 0)"
			code = strings.ReplaceAll(code, cond, fixed)
		}
	}
	for _, m := range reModelPick.FindAllStringSubmatch(code, -1) {
		line, list, idx := m[1], m[2], m[3]
		want := fmt.Sprintf("[rand.Next(0, %s.Count)]", list)
		if idx != want {
			code = strings.ReplaceAll(code, line, strings.Replace(line, idx, want, 1))
		}
	}
	return code
}

// #endregion sanitize

// #region wrap

const wrapIndent = "        "

// Wrap embeds a script body in the runnable class for preview.
func Wrap(code string) string {
	lines := strings.Split(strings.TrimRight(code, " \t\r\n"), "\n")
	for i, l := range lines {
		lines[i] = wrapIndent + l
	}
	return prompts.WrapScript(strings.Join(lines, "\n"))
}

// #endregion wrap
