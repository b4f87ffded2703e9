package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
)

// #region patterns

const num = `-?\d+(?:\.\d+)?`

var (
	reGroupUnit   = regexp.MustCompile(`(\[\s*` + num + `(?:\s*mm)?\s*,\s*` + num + `(?:\s*mm)?(?:\s*,\s*` + num + `(?:\s*mm)?)?\s*\])\s*(?:mm| millimeters)`)
	reMeterPair   = regexp.MustCompile(`\[\s*(` + num + `)\s*m\s*,\s*(` + num + `)\s*m\s*\]`)
	reMeterTriple = regexp.MustCompile(`\[\s*(` + num + `)\s*m\s*,\s*(` + num + `)\s*m\s*,\s*(` + num + `)\s*m?\s*\]`)
	reMillimeter  = regexp.MustCompile(`\[\s*` + num + `\s*mm\s*,\s*` + num + `\s*mm(?:\s*,\s*` + num + `\s*mm)?\s*\]`)
	reMMSuffix    = regexp.MustCompile(`\s*mm`)
	reCentimeter  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:cm|centimeters)`)
	rePair        = regexp.MustCompile(`\[\s*` + num + `\s*,\s*` + num + `\s*\]`)
	reTripleZ     = regexp.MustCompile(`(\[\s*` + num + `\s*,\s*` + num + `\s*,\s*)` + num + `\s*\]`)
	reTriple      = regexp.MustCompile(`\[\s*(` + num + `)\s*,\s*(` + num + `)\s*,\s*(` + num + `)\s*\]`)
)

var vocabulary = compileVocabulary()

func compileVocabulary() []*regexp.Regexp {
	items := catalog.ItemList()
	out := make([]*regexp.Regexp, len(items))
	for i, item := range items {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(item))
	}
	return out
}

// #endregion patterns

// #region normalize

// Normalize rewrites every coordinate and unit mention into the canonical
// millimeter form "[x, y, 0]" and strips stray quote noise. Applying it to its
// own output is a no-op.
func Normalize(text string) string {
	text = ChangeUnits(text)
	text = strings.TrimLeft(text, ".\"' ")
	text = strings.TrimRight(text, "\"' ")
	text = strings.NewReplacer(`"`, "", `'`, "").Replace(text)
	return strings.TrimSpace(text)
}

// ChangeUnits runs the ordered unit and coordinate passes. Each pass assumes
// the output shape of the one before it.
func ChangeUnits(text string) string {
	text = strings.NewReplacer("(", "[", ")", "]").Replace(text)

	// A unit after the group also covers units inside it.
	text = reGroupUnit.ReplaceAllStringFunc(text, func(m string) string {
		group := reGroupUnit.FindStringSubmatch(m)[1]
		return reMMSuffix.ReplaceAllString(group, "")
	})

	text = reMeterPair.ReplaceAllStringFunc(text, func(m string) string {
		sub := reMeterPair.FindStringSubmatch(m)
		return "[" + meters(sub[1]) + ", " + meters(sub[2]) + "]"
	})

	text = reMeterTriple.ReplaceAllStringFunc(text, func(m string) string {
		sub := reMeterTriple.FindStringSubmatch(m)
		return "[" + meters(sub[1]) + ", " + meters(sub[2]) + ", " + meters(sub[3]) + "]"
	})

	text = reMillimeter.ReplaceAllStringFunc(text, func(m string) string {
		return strings.TrimSpace(reMMSuffix.ReplaceAllString(m, ""))
	})

	text = reCentimeter.ReplaceAllStringFunc(text, func(m string) string {
		sub := reCentimeter.FindStringSubmatch(m)
		v, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return m
		}
		return pyFloat(v/100) + " meters"
	})

	text = rePair.ReplaceAllStringFunc(text, func(m string) string {
		return strings.TrimRight(m[:len(m)-1], " \t\n") + ", 0]"
	})

	text = reTripleZ.ReplaceAllString(text, "${1}0]")

	return reTriple.ReplaceAllString(text, "[$1, $2, $3]")
}

// StandardizeNames rewrites case variants of vocabulary names to their
// canonical spelling.
func StandardizeNames(text string) string {
	items := catalog.ItemList()
	for i, re := range vocabulary {
		text = re.ReplaceAllLiteralString(text, items[i])
	}
	return strings.TrimSpace(text)
}

// Clean is Normalize followed by StandardizeNames. ok is false for empty input.
func Clean(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	return StandardizeNames(Normalize(text)), true
}

// #endregion normalize

// #region helpers

// meters converts a meter literal to truncated integer millimeters.
func meters(s string) string {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatInt(int64(math.Trunc(v*1000)), 10)
}

// pyFloat formats v the way a decimal literal is usually written: always
// with a fractional part.
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// #endregion helpers
