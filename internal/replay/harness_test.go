package replay

import (
	"context"
	"strings"
	"testing"

	"github.com/danielpatrickdp/scenegen/internal/catalog"
	"github.com/danielpatrickdp/scenegen/internal/eval"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/records"
)

// #region helpers

const listingReply = "#Step 1: Find all objects#\nAnalysis: a\nObjects: [\"robot\", \"table\"]\n\n" +
	"#Step 2: Fix object names#\nAnalysis: b\nObjects: [\"Kuka Robot KR125\", \"Welding Table\"]\n\n" +
	"#Step 3: Rewrite description#\nAnalysis: c\nNew Description: A Kuka Robot KR125 stands 2 meters in front of a Welding Table.\n```"

const layoutReply = "#Step 1: Identify Objects#\nAnalysis: two objects\nObjects:\n[\"Kuka Robot KR125\", \"Welding Table\"]\n\n" +
	"#Step 2: Absolute Positions#\nAnalysis: table at origin\nPositions:\n[{\"name\": \"Welding Table\", \"position\": \"[0, 0, 0]\", \"orientation\": \"0\"}]\n\n" +
	"#Step 3: Relative Positions#\nAnalysis: robot in front\nRelative Positions:\n[{\"object 1\": \"Kuka Robot KR125\", \"relation\": \"2 meters in front of\", \"object 2\": \"Welding Table\"}]\n"

const assignReply = "#Step 1: Rewrite Relative Position#\nAnalysis: delta\nNew Relative Positions:\n[{\"object 1\": \"Kuka Robot KR125\", \"relation\": \"[2000, 0, 0]\", \"object 2\": \"Welding Table\"}]\n\n" +
	"#Step 2: Calculate Coordinates#\nAnalysis: calc\nPositions:\n[{\"name\": \"Kuka Robot KR125\", \"position\": \"[2000, 0, 0]\", \"orientation\": \"180\"}]\n\n" +
	"#Step 3: Assign Positions#\nAnalysis: assign\nPositions:\n[{\"name\": \"Kuka Robot KR125\", \"position\": \"[2000, 0, 0]\", \"orientation\": \"180\"}]\n"

const conflictNo = "Relations: Kuka Robot KR125 is 2000 from Welding Table\nAnalysis: Consistent.\nError: No"

func validScript() string {
	placed := strings.NewReplacer(
		"= x;", "= 2000;",
		"= y;", "= 0;",
		"= degree *", "= 180 *",
	).Replace(catalog.PlacementSnippet)
	return "```csharp\n" + catalog.Preamble + "\n\n" +
		"List<DirectoryInfo> objModels = new List<DirectoryInfo>();\n" +
		catalog.RandomDecl + "\n" + catalog.PhysicalRootDecl + "\n" +
		placed + "\n\n" + catalog.TerminalCall + "\n```"
}

func sceneFixture(codeReplies ...string) *Fixture {
	return &Fixture{
		Transcripts: map[string][]string{
			orchestrator.StageRetrieveObjects: {listingReply},
			orchestrator.StageExtractLayout:   {layoutReply},
			orchestrator.StageAssignPlacement: {assignReply},
			orchestrator.StageCheckPlacement:  {conflictNo},
			orchestrator.StageGenerateCode:    codeReplies[:1],
			orchestrator.StageFixCode:         codeReplies[1:],
		},
		Scenes: []records.Description{{ID: 3, Description: "A robot in front of a table."}},
	}
}

// #endregion helpers

// 1. Clean scene: every stage passes first time -> keep.
func TestReplay_KeepPath(t *testing.T) {
	f := sceneFixture(validScript())
	router, _ := f.Router()

	results, err := Replay(context.Background(), router, f.Scenes, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Action != "keep" {
		t.Fatalf("expected keep, got %s: %s", r.Action, r.Reason)
	}
	if r.Scene == nil || r.PlacementDecision == nil || r.CodeDecision == nil {
		t.Fatal("expected scene and both decisions")
	}
	if !r.Scene.Code.Passed {
		t.Fatalf("expected script to pass: %v", r.Scene.Code.Reasons)
	}
}

// 2. Script never validates within its bound -> flag.
func TestReplay_FlagOnExhaustedScript(t *testing.T) {
	bad := strings.Replace(validScript(), catalog.RotationCall, "TxTransformation.TxRotationType.RPY_XYZ", 1)
	f := sceneFixture(bad)
	cfg := DefaultReplayConfig()
	cfg.Bounds = orchestrator.Bounds{orchestrator.StageGenerateCode: 1}
	router, _ := f.Router()

	results, err := Replay(context.Background(), router, f.Scenes, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	r := results[0]
	if r.Action != "flag" {
		t.Fatalf("expected flag, got %s: %s", r.Action, r.Reason)
	}
	if r.PlacementDecision.Action != "keep" {
		t.Fatalf("placement should be kept, got %s", r.PlacementDecision.Action)
	}
}

// 3. Strict gate discards the same scene.
func TestReplay_StrictGateDiscards(t *testing.T) {
	bad := strings.Replace(validScript(), catalog.RotationCall, "TxTransformation.TxRotationType.RPY_XYZ", 1)
	f := sceneFixture(bad)
	cfg := DefaultReplayConfig()
	cfg.Bounds = orchestrator.Bounds{orchestrator.StageGenerateCode: 1}
	cfg.GateConfig.DiscardExhausted = true
	router, _ := f.Router()

	results, err := Replay(context.Background(), router, f.Scenes, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Action != "discard" {
		t.Fatalf("expected discard, got %s", results[0].Action)
	}
}

// 4. Running out of transcript is a hard failure, not a skip.
func TestReplay_TranscriptExhaustedIsHard(t *testing.T) {
	f := &Fixture{Scenes: []records.Description{{ID: 1, Description: "x"}}}
	router, _ := f.Router()

	_, err := Replay(context.Background(), router, f.Scenes, DefaultReplayConfig())
	if err == nil {
		t.Fatal("expected error")
	}
	if !oracle.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

// 5. Summarize counts actions and evaluates only processed scenes.
func TestSummarize(t *testing.T) {
	f := sceneFixture(validScript())
	router, _ := f.Router()
	results, err := Replay(context.Background(), router, f.Scenes, DefaultReplayConfig())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	results = append(results, ReplayResult{ID: 9, Action: ActionSkipped})

	s := Summarize(results, eval.DefaultEvalConfig())

	if s.TotalScenes != 2 || s.Keeps != 1 || s.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.Eval.Passed {
		t.Fatalf("expected eval pass: %s", s.Eval.Reason)
	}
	if m, _ := s.Eval.Metric("skipped"); m.Value != 1 {
		t.Fatalf("expected 1 skipped, got %f", m.Value)
	}
}
