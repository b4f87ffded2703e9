package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
)

// #region reasons

const (
	ReasonScript     = "The description should only contain English in proper upper and lower cases."
	ReasonVertical   = "The z-coordinates should be 0."
	ReasonCoordinate = "The coordinates should contain three values in millimeters in the form of [x, y, 0] with x and y being specific numbers."
)

// #endregion reasons

// #region patterns

var (
	reHan          = regexp.MustCompile(`\p{Han}`)
	reTripleZ      = regexp.MustCompile(`\[[-\d\s.m]+\s*,\s*[-\d\s.m]+\s*,\s*([-\d\s.m]+)\]`)
	reBracketGroup = regexp.MustCompile(`\[[^\[]+\s*,\s*[^\[]+\s*(?:,\s*[^\[]+)?\]`)
	reCoordGrammar = regexp.MustCompile(`^\[-?\d+(\.\d+)?\s*(m|mm)?\s*,\s*-?\d+(\.\d+)?\s*(m|mm)?\s*(,\s*-?\d+(\.\d+)?\s*(m|mm)?)?\]$`)
)

// #endregion patterns

// #region text-rules

// TextRules returns the local description rules in reporting order.
func TextRules() []Rule {
	return []Rule{
		{Name: "script", Check: CheckScriptCase},
		{Name: "vertical_nonzero", Check: CheckVertical},
		{Name: "invalid_coordinate", Check: CheckCoordinateGrammar},
		{Name: "banned_tokens", Check: CheckBannedTokens},
	}
}

// CheckText runs every local description rule.
func CheckText(text string) Verdict {
	return Run(TextRules(), text)
}

// CheckScriptCase rejects CJK script and all upper-case text.
func CheckScriptCase(text string) Verdict {
	if reHan.MatchString(text) || text == strings.ToUpper(text) {
		return Fail(ReasonScript)
	}
	return Pass()
}

// CheckVertical rejects a coordinate triple whose third value is not zero.
func CheckVertical(text string) Verdict {
	for _, m := range reTripleZ.FindAllStringSubmatch(text, -1) {
		if !catalog.IsZeroLiteral(m[1]) {
			return Fail(ReasonVertical)
		}
	}
	return Pass()
}

// CheckCoordinateGrammar rejects bracketed groups that are not two or three
// numbers with an optional m/mm unit.
func CheckCoordinateGrammar(text string) Verdict {
	for _, m := range reBracketGroup.FindAllString(text, -1) {
		if !reCoordGrammar.MatchString(m) {
			return Fail(ReasonCoordinate)
		}
	}
	return Pass()
}

// CheckBannedTokens rejects text containing any banned token as a word.
func CheckBannedTokens(text string) Verdict {
	lower := strings.ToLower(text)
	var found []string
	for _, b := range catalog.BannedTokens() {
		if b.Pattern.MatchString(lower) {
			found = append(found, b.Name)
		}
	}
	if len(found) == 0 {
		return Pass()
	}
	return Fail(fmt.Sprintf("The description should not contain these words: [%s]", strings.Join(found, ", ")))
}

// #endregion text-rules
