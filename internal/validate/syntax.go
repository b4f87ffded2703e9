package validate

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// #region syntax

// Script bodies are statement lists; they parse inside a method shell whose
// opening occupies shellLines lines.
const (
	shellOpen  = "class Scene\n{\n    void Run()\n    {\n"
	shellClose = "\n    }\n}\n"
	shellLines = 4

	maxSyntaxReports = 3
)

// CheckSyntax parses code as C# method statements and reports up to three
// syntax errors with body-relative line numbers. An empty body passes.
func CheckSyntax(ctx context.Context, code string) (Verdict, error) {
	if strings.TrimSpace(code) == "" {
		return Pass(), nil
	}
	src := []byte(shellOpen + code + shellClose)

	parser := sitter.NewParser()
	parser.SetLanguage(csharp.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse script: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return Pass(), nil
	}
	var v Verdict
	collectSyntaxErrors(root, src, &v, 0)
	if !v.Violated {
		v = Fail("Code has a syntax error.")
	}
	return v, nil
}

func collectSyntaxErrors(node *sitter.Node, src []byte, v *Verdict, depth int) {
	if depth > 500 || len(v.Reasons) >= maxSyntaxReports {
		return
	}
	if node.IsError() || node.IsMissing() {
		line := int(node.StartPoint().Row) + 1 - shellLines
		if line < 1 {
			line = 1
		}
		msg := fmt.Sprintf("Code has a syntax error at line %d", line)
		if node.IsMissing() {
			msg += fmt.Sprintf(": missing %s", node.Type())
		} else if frag := node.Content(src); frag != "" && len(frag) < 60 {
			msg += fmt.Sprintf(": unexpected '%s'", strings.TrimSpace(frag))
		}
		*v = Merge(*v, Fail(msg+"."))
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), src, v, depth+1)
	}
}

// #endregion syntax
