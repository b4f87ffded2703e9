package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/normalize"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/placement"
	"github.com/danielpatrickdp/scenegen/internal/records"
	"github.com/danielpatrickdp/scenegen/internal/script"
)

// #region fixtures

const listingReply = "#Step 1: Find all objects#\nAnalysis: a\nObjects: [\"robot\", \"table\"]\n\n" +
	"#Step 2: Fix object names#\nAnalysis: b\nObjects: [\"Kuka Robot KR125\", \"Welding Table\", \"Cabinet\"]\n\n" +
	"#Step 3: Rewrite description#\nAnalysis: c\nNew Description: A kuka robot KR125 stands 2 meters in front of a Welding Table at (0, 0). A Cabinet is nearby.\n```"

const layoutReply = "#Step 1: Identify Objects#\nAnalysis: three objects\nObjects:\n[\"Kuka Robot KR125\", \"Welding Table\", \"Cabinet\"]\n\n" +
	"#Step 2: Absolute Positions#\nAnalysis: table at origin\nPositions:\n[{\"name\": \"Welding Table\", \"position\": \"[0, 0, 0]\", \"orientation\": \"0\"}]\n\n" +
	"#Step 3: Relative Positions#\nAnalysis: robot in front\nRelative Positions:\n[{\"object 1\": \"Kuka Robot KR125\", \"relation\": \"2 meters in front of\", \"object 2\": \"Welding Table\"}]\n"

func assignReply(step2, step3 string) string {
	return "#Step 1: Rewrite Relative Position#\nAnalysis: delta\nNew Relative Positions:\n[{\"object 1\": \"Kuka Robot KR125\", \"relation\": \"[2000, 0, 0]\", \"object 2\": \"Welding Table\"}]\n\n" +
		"#Step 2: Calculate Coordinates#\nAnalysis: calc\nPositions:\n" + step2 + "\n\n" +
		"#Step 3: Assign Positions#\nAnalysis: assign\nPositions:\n" + step3 + "\n"
}

var (
	assignTooClose = assignReply(
		`[{"name": "Kuka Robot KR125", "position": "[2000, 0, 0]", "orientation": "180"}]`,
		`[{"name": "Kuka Robot KR125", "position": "[500, 0, 0]", "orientation": "180"}]`)
	assignFixed = assignReply(
		`[{"name": "Kuka Robot KR125", "position": "[2000, 0, 0]", "orientation": "180"}]`,
		`[{"name": "Kuka Robot KR125", "position": "[2000, 0, 0]", "orientation": "180"}, {"name": "Cabinet", "position": "[0, 2000, 0]", "orientation": "0"}]`)
)

const (
	conflictYes = "Relations: Kuka Robot KR125 is 500 from Welding Table\nAnalysis: The robot should be 2000 in front of the table.\nError: Yes"
	conflictNo  = "Relations: Kuka Robot KR125 is 2000 from Welding Table\nAnalysis: Consistent.\nError: No"
)

func validScript() string {
	placed := strings.NewReplacer(
		"= x;", "= 2000;",
		"= y;", "= 0;",
		"= degree *", "= 180 *",
	).Replace(catalog.PlacementSnippet)
	return catalog.Preamble + "\n\n" +
		"List<DirectoryInfo> objModels = new List<DirectoryInfo>();\n" +
		catalog.RandomDecl + "\n" + catalog.PhysicalRootDecl + "\n" +
		placed + "\n\n" + catalog.TerminalCall
}

func fenced(code string) string { return "```csharp\n" + code + "\n```" }

// scriptedRouter backs each stage with its own transcript. The default
// oracle has no replies, so an unexpected call fails as a transport error.
func scriptedRouter(stages map[string][]string) (oracle.Router, map[string]*oracle.TranscriptBackend) {
	def, _ := oracle.NewScripted()
	r := oracle.Router{Default: def, Stages: map[string]oracle.Oracle{}}
	tbs := map[string]*oracle.TranscriptBackend{}
	for name, replies := range stages {
		c, tb := oracle.NewScripted(replies...)
		r.Stages[name] = c
		tbs[name] = tb
	}
	return r, tbs
}

func layoutRecord() records.ExtractLayout {
	return records.ExtractLayout{
		ID:          7,
		Prompt:      "A Kuka Robot KR125 stands 2000 in front of a Welding Table at [0, 0, 0]. A Cabinet is nearby.",
		Objects:     `["Kuka Robot KR125", "Welding Table", "Cabinet", "Reference Point"]`,
		Coordinates: `[{"name": "Welding Table", "position": "[0, 0, 0]", "orientation": "0"}]`,
		Relations:   `[{"object 1": "Kuka Robot KR125", "relation": "2 meters in front of", "object 2": "Welding Table"}]`,
	}
}

// #endregion

// #region layout-tests

func TestRetrieveObjectsCleansDescription(t *testing.T) {
	r, tbs := scriptedRouter(map[string][]string{
		orchestrator.StageRetrieveObjects: {"Objects: none here", listingReply},
	})
	p := New(r, nil, Options{ParseBound: 3}, nil)

	rec, err := p.RetrieveObjects(context.Background(), records.Description{ID: 4, Description: "a robot and a table"})
	require.NoError(t, err)

	raw := "A kuka robot KR125 stands 2 meters in front of a Welding Table at (0, 0). A Cabinet is nearby.\n"
	want, _ := normalize.Clean(raw)
	assert.Equal(t, want, rec.RewrittenPrompt)
	assert.Equal(t, 4, rec.ID)
	assert.Equal(t, 4, rec.DescriptionID)
	assert.Equal(t, `["Kuka Robot KR125", "Welding Table", "Cabinet"]`, rec.Objects)
	assert.Contains(t, rec.ModelOutput, want)
	assert.Len(t, rec.Analysis, 3)
	assert.Len(t, tbs[orchestrator.StageRetrieveObjects].Calls(), 2)
}

func TestExtractLayoutRegeneratesUntilWellFormed(t *testing.T) {
	r, _ := scriptedRouter(map[string][]string{
		orchestrator.StageExtractLayout: {"#Step 1: nothing useful", layoutReply},
	})
	p := New(r, nil, Options{ParseBound: 3}, nil)

	rec, err := p.ExtractLayout(context.Background(), records.RetrieveObjects{ID: 2, RewrittenPrompt: "desc", Objects: `["Cabinet"]`})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, 2, rec.RetrieveObjectsID)
	assert.Equal(t, "desc", rec.Prompt)
	assert.Contains(t, rec.Coordinates, "Welding Table")
	assert.Contains(t, rec.Relations, "object 1")
}

func TestExtractLayoutParseBoundIsSoft(t *testing.T) {
	r, _ := scriptedRouter(map[string][]string{
		orchestrator.StageExtractLayout: {"bad", "bad", "bad"},
	})
	p := New(r, nil, Options{ParseBound: 3}, nil)

	_, err := p.ExtractLayout(context.Background(), records.RetrieveObjects{ID: 2})
	require.Error(t, err)
	assert.True(t, orchestrator.IsSoft(err))
	assert.ErrorIs(t, err, orchestrator.ErrParseExhausted)
}

func TestTransportErrorIsHard(t *testing.T) {
	r, _ := scriptedRouter(nil)
	p := New(r, nil, Options{ParseBound: 3}, nil)

	_, err := p.RetrieveObjects(context.Background(), records.Description{ID: 1, Description: "x"})
	require.Error(t, err)
	assert.False(t, orchestrator.IsSoft(err))
	assert.True(t, oracle.IsTransport(err))
}

// #endregion

// #region placement-tests

func TestAssignPlacementFeedbackCycle(t *testing.T) {
	r, tbs := scriptedRouter(map[string][]string{
		orchestrator.StageAssignPlacement: {assignTooClose},
		orchestrator.StageFixPlacement:    {assignFixed},
		orchestrator.StageCheckPlacement:  {conflictYes, conflictNo},
	})
	p := New(r, nil, Options{ParseBound: 3}, nil)

	res, err := p.AssignPlacement(context.Background(), layoutRecord())
	require.NoError(t, err)

	rec := res.Record
	assert.True(t, rec.Passed)
	assert.Equal(t, 1, rec.FailedRounds)
	assert.Equal(t, 7, rec.ExtractLayoutID)
	assert.Equal(t, assignFixed, rec.ModelOutput)

	names := []string{}
	for _, e := range rec.CoordsFinal {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Welding Table", "Kuka Robot KR125", "Cabinet"}, names)
	assert.Equal(t, "[2000, 0, 0]", rec.CoordsFinal[1].Position)
	assert.Empty(t, rec.Unplaced)

	require.Len(t, res.Checks, 2)
	assert.True(t, res.Checks[0].ShouldFilter)
	assert.Contains(t, res.Checks[0].FilterReason, "2000 in front")
	assert.True(t, res.Checks[0].Conforming)
	assert.False(t, res.Checks[1].ShouldFilter)
	// First round: the cabinet had no position and was placed locally.
	assert.Len(t, res.Checks[0].Coords, 3)

	require.Len(t, res.Fixes, 1)
	fix := res.Fixes[0]
	assert.True(t, fix.IsLastRound)
	require.Len(t, fix.ModelInput, 3)
	assert.Equal(t, oracle.RoleAssistant, fix.ModelInput[1].Role)
	assert.Contains(t, fix.ModelInput[1].Content, `"name": "Cabinet"`)
	assert.Contains(t, fix.ModelInput[2].Content, "2000 in front")

	// The fix oracle saw the reset history.
	calls := tbs[orchestrator.StageFixPlacement].Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 3)
}

func TestResolveKeepsOneGuarding(t *testing.T) {
	el := layoutRecord()
	el.Objects = `["Kuka Robot KR125", "Welding Table", "Guarding", "Guarding 2", "Guarding 3"]`
	r, err := newResolver(el, placement.DefaultRange)
	require.NoError(t, err)

	c := r.resolve(
		[]placement.Entry{
			{Name: "Kuka Robot KR125", Position: "[2000, 0, 0]", Orientation: "180"},
			{Name: "Guarding 2", Position: "[1000, 0, 0]", Orientation: "0"},
		},
		[]placement.Entry{{Name: "Guarding", Position: "[5, 5, 0]", Orientation: "0"}},
	)

	names := []string{}
	for _, e := range c.Entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Welding Table", "Kuka Robot KR125", "Guarding 2"}, names)
	assert.Equal(t, []string{"Guarding", "Guarding 3"}, c.DroppedGuarding)
	assert.Empty(t, c.Filled)
	assert.Empty(t, c.Unplaced)
}

func TestAssignPlacementExhaustsAndKeepsLast(t *testing.T) {
	r, _ := scriptedRouter(map[string][]string{
		orchestrator.StageAssignPlacement: {assignTooClose},
		orchestrator.StageFixPlacement:    {assignTooClose, assignTooClose},
		orchestrator.StageCheckPlacement:  {conflictYes, conflictYes, conflictYes},
	})
	o, err := orchestrator.NewOrchestrator(nil, orchestrator.Bounds{orchestrator.StageAssignPlacement: 3}, nil)
	require.NoError(t, err)
	p := New(r, o, Options{ParseBound: 1}, nil)

	res, err := p.AssignPlacement(context.Background(), layoutRecord())
	require.NoError(t, err)
	assert.False(t, res.Record.Passed)
	assert.Equal(t, 3, res.Record.FailedRounds)
	assert.NotEmpty(t, res.Record.CoordsFinal)
	assert.Len(t, res.Checks, 3)
	require.Len(t, res.Fixes, 2)
	assert.False(t, res.Fixes[1].IsLastRound)
}

func TestAssignPlacementBadLayoutIsSoft(t *testing.T) {
	r, _ := scriptedRouter(nil)
	p := New(r, nil, Options{}, nil)
	el := layoutRecord()
	el.Objects = "not a list"

	_, err := p.AssignPlacement(context.Background(), el)
	require.Error(t, err)
	assert.True(t, orchestrator.IsSoft(err))
}

// #endregion

// #region codegen-tests

func TestGenerateScriptRetriesOnViolation(t *testing.T) {
	bad := strings.Replace(validScript(), catalog.RotationCall, "TxTransformation.TxRotationType.RPY_XYZ", 1)
	r, tbs := scriptedRouter(map[string][]string{
		orchestrator.StageGenerateCode: {fenced(bad)},
		orchestrator.StageFixCode:      {fenced(validScript())},
	})
	p := New(r, nil, Options{}, nil)

	positions := []placement.Entry{{Name: "Kuka Robot KR125", Position: "[2000, 0, 0]", Orientation: "180"}}
	rec, err := p.GenerateScript(context.Background(), 3, "desc", `["Kuka Robot KR125"]`, positions)
	require.NoError(t, err)
	assert.True(t, rec.Passed, "reasons: %v", rec.Reasons)
	assert.Equal(t, 1, rec.FailedRounds)
	assert.Equal(t, 3, rec.ID)
	assert.True(t, strings.HasSuffix(rec.Code, catalog.TerminalCall))
	assert.Contains(t, rec.Preview, "public class MainScript")

	calls := tbs[orchestrator.StageFixCode].Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 3)
	assert.Contains(t, calls[0][2].Content, catalog.RotationCall)
}

func TestValidateScriptSyntax(t *testing.T) {
	r, _ := scriptedRouter(nil)
	p := New(r, nil, Options{SyntaxCheck: true}, nil)

	v, err := p.ValidateScript(context.Background(), sanitizeOK(t, validScript()))
	require.NoError(t, err)
	assert.False(t, v.Violated, "reasons: %v", v.Reasons)

	broken := strings.Replace(validScript(), "new Random();", "new Random(;", 1)
	v, err = p.ValidateScript(context.Background(), sanitizeOK(t, broken))
	require.NoError(t, err)
	assert.True(t, v.Violated)
}

func sanitizeOK(t *testing.T, code string) script.Artifact {
	t.Helper()
	a, err := sanitize(fenced(code))
	require.NoError(t, err)
	require.False(t, a.Empty())
	return a
}

// #endregion

// #region process-tests

func TestProcessFullChain(t *testing.T) {
	r, _ := scriptedRouter(map[string][]string{
		orchestrator.StageRetrieveObjects: {listingReply},
		orchestrator.StageExtractLayout:   {layoutReply},
		orchestrator.StageAssignPlacement: {assignFixed},
		orchestrator.StageCheckPlacement:  {conflictNo},
		orchestrator.StageGenerateCode:    {fenced(validScript())},
	})
	p := New(r, nil, Options{ParseBound: 2}, nil)

	sc, err := p.Process(context.Background(), records.Description{ID: 11, Description: "a robot in front of a table"})
	require.NoError(t, err)
	assert.Equal(t, 11, sc.Layout.RetrieveObjectsID)
	assert.True(t, sc.Placement.Record.Passed)
	assert.Empty(t, sc.Placement.Fixes)
	assert.True(t, sc.Code.Passed)
	assert.Equal(t, sc.Retrieve.RewrittenPrompt, sc.Code.Description)
}

// #endregion
