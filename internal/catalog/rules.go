package catalog

import "regexp"

// #region banned-tokens

// BannedToken is one forbidden description token and its matcher. Patterns
// run against lower-cased text.
type BannedToken struct {
	Name    string
	Pattern *regexp.Regexp
}

var bannedTokens = []BannedToken{
	{"newline", regexp.MustCompile(`\n`)},
	{"without", regexp.MustCompile(`\bwithout\b`)},
	{"instead", regexp.MustCompile(`\binstead\b`)},
	{"not", regexp.MustCompile(`\bnot\b`)},
	{"now", regexp.MustCompile(`\bnow\b`)},
	{"no", regexp.MustCompile(`\bno\b`)},
	{"east", regexp.MustCompile(`\beast\b`)},
	{"west", regexp.MustCompile(`\bwest\b`)},
	{"north", regexp.MustCompile(`\bnorth\b`)},
	{"south", regexp.MustCompile(`\bsouth\b`)},
	{"workbench", regexp.MustCompile(`\bworkbench(es)?\b`)},
	{"euclid", regexp.MustCompile(`\beuclid`)},
}

// BannedTokens returns a copy of the banned description tokens.
func BannedTokens() []BannedToken {
	return append([]BannedToken(nil), bannedTokens...)
}

// #endregion banned-tokens

// #region script-constructs

// ScriptConstruct is a forbidden script construct, matched either literally
// or by pattern.
type ScriptConstruct struct {
	Literal string
	Pattern *regexp.Regexp
}

var forbiddenConstructs = []ScriptConstruct{
	{Pattern: regexp.MustCompile(`double [\w\d]+ = x;`)},
	{Literal: "while "},
	{Literal: "class "},
	{Literal: "void "},
	{Literal: "\nusing "},
	{Literal: "throw "},
	{Literal: "TxVector.Zero"},
	{Literal: "TxVector.Identity"},
	{Literal: "TxApplication.Output"},
	{Literal: "PlaceRobot"},
	{Literal: "PlaceObjectAt"},
	{Literal: "CreateTransformation"},
	{Pattern: regexp.MustCompile(`^using `)},
}

// ForbiddenScriptConstructs returns a copy of the forbidden script constructs.
func ForbiddenScriptConstructs() []ScriptConstruct {
	return append([]ScriptConstruct(nil), forbiddenConstructs...)
}

// #endregion script-constructs

// #region boilerplate

const (
	// RootDecl opens every generated script and marks the extracted block.
	RootDecl = `string rootDir = TxApplication.SystemRootDirectory;`

	// Preamble is the exact three-line script opening.
	Preamble = RootDecl + "\n" +
		`string weldingLibPath = Path.Combine(rootDir, "Welding");` + "\n" +
		`string[] weldingModels = Directory.GetDirectories(weldingLibPath, "*.cojt", SearchOption.TopDirectoryOnly);`

	RandomDecl       = `Random rand = new Random();`
	PhysicalRootDecl = `TxPhysicalRoot txPhysicalRoot = TxApplication.ActiveDocument.PhysicalRoot;`
	TerminalCall     = `TxApplication.RefreshDisplay();`
	RotationCall     = `TxTransformation.TxRotationType.RPY_ZYX`
	OutputWriter     = `output.Write`

	// CodeFence opens the fenced block the sanitizer extracts.
	CodeFence = "```csharp\n"
)

// PlacementSnippet is the canonical pick-place-rotate block for one object.
const PlacementSnippet = `DirectoryInfo objModel1 = objModels[rand.Next(0, objModels.Count)];
string obj1Name = Path.GetFileNameWithoutExtension(objModel1.Name) + "_" + DateTime.Now.ToString("yyyy-MM-dd-HH-mm-ss");
TxInsertComponentCreationData txInsertDataObj1 = new TxInsertComponentCreationData(obj1Name, objModel1.FullName);
ITxComponent txComponentObject1 = txPhysicalRoot.InsertComponent(txInsertDataObj1);

double transXValue1 = x;
double transYValue1 = y;
double rotValue1 = degree * Math.PI / 180.0;
TxTransformation txTransTransXYRotZ = new TxTransformation(new TxVector(transXValue1, transYValue1, 0.0), new TxVector(0.0, 0.0, rotValue1), TxTransformation.TxRotationType.RPY_ZYX);
ITxLocatableObject obj1 = (ITxLocatableObject)txComponentObject1;
obj1.AbsoluteLocation *= txTransTransXYRotZ;`

// #endregion boilerplate

// #region planar

// zeroLiterals are the accepted spellings of a zero vertical component.
var zeroLiterals = map[string]bool{
	"0": true, "0.0": true, "0m": true, "0.0m": true, "0mm": true, "0.0mm": true,
}

// IsZeroLiteral reports whether s is an accepted zero vertical component.
func IsZeroLiteral(s string) bool {
	return zeroLiterals[s]
}

// #endregion planar
