package validate

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
)

// #region script-rules

// RotationReason is the corrective message for a script that never builds
// the required rotation.
var RotationReason = "You should use the following code to place objects:\n```csharp\n" +
	catalog.PlacementSnippet + "\n```\nDo not use other methods made by yourself."

// PreambleReason is reported when the script does not open with the preamble.
var PreambleReason = "Code must start with:\n```csharp\n" + catalog.Preamble + "\n```"

// ScriptRules returns the generated-script rules in reporting order.
func ScriptRules() []Rule {
	return []Rule{
		{Name: "forbidden_constructs", Check: CheckForbiddenConstructs},
		{Name: "rotation_call", Check: CheckRotationCall},
		{Name: "preamble", Check: CheckPreamble},
	}
}

// CheckScript runs every script rule. An empty script fails the preamble rule.
func CheckScript(code string) Verdict {
	return Run(ScriptRules(), code)
}

// CheckForbiddenConstructs reports every forbidden construct in code.
func CheckForbiddenConstructs(code string) Verdict {
	var v Verdict
	for _, fc := range catalog.ForbiddenScriptConstructs() {
		var hit string
		if fc.Pattern != nil {
			hit = fc.Pattern.FindString(code)
		} else if strings.Contains(code, fc.Literal) {
			hit = fc.Literal
		}
		if hit != "" {
			v = Merge(v, Fail(fmt.Sprintf("Code contains invalid content '%s'", hit)))
		}
	}
	return v
}

// CheckRotationCall requires the canonical rotation construction.
func CheckRotationCall(code string) Verdict {
	if !strings.Contains(code, catalog.RotationCall) {
		return Fail(RotationReason)
	}
	return Pass()
}

// CheckPreamble requires the exact three-line opening.
func CheckPreamble(code string) Verdict {
	if !strings.HasPrefix(code, catalog.Preamble) {
		return Fail(PreambleReason)
	}
	return Pass()
}

// #endregion script-rules
