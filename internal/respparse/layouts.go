package respparse

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// #region schemas

var (
	objectsSchema = jsonschema.MustCompileString("objects.json", `{
		"type": "array",
		"items": {"type": "string"}
	}`)
	positionsSchema = jsonschema.MustCompileString("positions.json", `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["name"],
			"properties": {"name": {"type": "string"}}
		}
	}`)
	relationsSchema = jsonschema.MustCompileString("relations.json", `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["object 1", "object 2"],
			"properties": {
				"object 1": {"type": "string"},
				"object 2": {"type": "string"}
			}
		}
	}`)
)

// #endregion schemas

// #region layouts

const (
	endOfReply = "(?:`|$)"
)

// ExtractLayout is the object / absolute position / relative position reply.
var ExtractLayout = NewLayout("extract_layout",
	Section{Step: 1, Name: "Identify Objects", Label: "Objects", End: `#Step 2`, Schema: objectsSchema},
	Section{Step: 2, Name: "Absolute Positions", Label: "Positions", End: `#Step 3`, Schema: positionsSchema},
	Section{Step: 3, Name: "Relative Positions", Label: "Relative Positions", End: endOfReply, Schema: relationsSchema},
)

// AssignPlacement is the delta / computed / assigned positions reply. The
// first section is audit text only; only steps 2 and 3 must decode.
var AssignPlacement = NewLayout("assign_placement",
	Section{Step: 2, Name: "Calculate Coordinates", Label: "Positions", End: "(?:`|#Step 3)", Schema: positionsSchema},
	Section{Step: 3, Name: "Assign Coordinates", Label: "Positions", End: endOfReply, Schema: positionsSchema},
)

// assignAnalysis also captures the delta rewrite rationale.
var assignAnalysis = NewLayout("assign_placement_analysis",
	Section{Step: 1, Name: "Rewrite Relative Position", Label: "New Relative Positions", End: `#Step 2`},
	Section{Step: 2, Name: "Calculate Coordinates", Label: "Positions", End: `#Step 3`},
	Section{Step: 3, Name: "Assign Coordinates", Label: "Positions", End: endOfReply},
)

// AssignAnalysis returns the rationale of all three placement steps.
func AssignAnalysis(reply string) []StepAnalysis {
	return assignAnalysis.Analysis(reply)
}

// #endregion layouts

// #region object-listing

var (
	reObjectList  = regexp.MustCompile(`Objects:\s*(\[.*?\])`)
	reDescription = regexp.MustCompile("New Description:\\s*([\\s\\S]*?)(?:$|`)")
)

var listingAnalysis = NewLayout("retrieve_objects_analysis",
	Section{Step: 1, Name: "Find all objects", Label: "Objects", End: `#Step 2`},
	Section{Step: 2, Name: "Fix object names", Label: "Objects", End: `#Step 3`},
	Section{Step: 3, Name: "Rewrite description", Label: "New Description", End: endOfReply},
)

// ObjectListing is the decoded retrieve-objects reply.
type ObjectListing struct {
	ObjectsRaw  string
	Objects     []string
	Description string
	Analysis    []StepAnalysis
}

// ParseObjectListing takes the last object list and the last rewritten
// description in reply. Both must be present and the list must decode.
func ParseObjectListing(reply string) (ObjectListing, error) {
	lists := reObjectList.FindAllStringSubmatch(reply, -1)
	descs := reDescription.FindAllStringSubmatch(reply, -1)
	if len(lists) == 0 {
		return ObjectListing{}, &FormatError{Section: "Objects", Reason: "missing"}
	}
	if len(descs) == 0 {
		return ObjectListing{}, &FormatError{Section: "New Description", Reason: "missing"}
	}
	raw := lists[len(lists)-1][1]
	_, _, err := DecodeList(raw, objectsSchema)
	if err != nil {
		return ObjectListing{}, &FormatError{Section: "Objects", Reason: err.Error()}
	}
	var names []string
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &names); err != nil {
		return ObjectListing{}, &FormatError{Section: "Objects", Reason: err.Error()}
	}
	return ObjectListing{
		ObjectsRaw:  raw,
		Objects:     names,
		Description: descs[len(descs)-1][1],
		Analysis:    listingAnalysis.Analysis(reply),
	}, nil
}

// #endregion object-listing

// #region records

// FlexString accepts a JSON string, or any other JSON value kept as its text.
// Oracles write positions as "[1, 2, 0]" and as [1, 2, 0] interchangeably.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, b); err != nil {
		return err
	}
	*f = FlexString(strings.ReplaceAll(compact.String(), ",", ", "))
	return nil
}

// PositionEntry is one named absolute position.
type PositionEntry struct {
	Name        string     `json:"name"`
	Position    FlexString `json:"position"`
	Orientation FlexString `json:"orientation,omitempty"`
}

// RelationEntry is one pairwise relative position.
type RelationEntry struct {
	Object1  string     `json:"object 1"`
	Relation FlexString `json:"relation"`
	Object2  string     `json:"object 2"`
}

// Positions decodes the i-th payload as position entries.
func (p Parsed) Positions(i int) ([]PositionEntry, error) {
	var out []PositionEntry
	err := p.Decode(i, &out)
	return out, err
}

// Relations decodes the i-th payload as relation entries.
func (p Parsed) Relations(i int) ([]RelationEntry, error) {
	var out []RelationEntry
	err := p.Decode(i, &out)
	return out, err
}

// Strings decodes the i-th payload as a list of names.
func (p Parsed) Strings(i int) ([]string, error) {
	var out []string
	err := p.Decode(i, &out)
	return out, err
}

// DecodePositions decodes a JSON positions list, tolerating oracle noise.
func DecodePositions(text string) ([]PositionEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	raw, _, err := DecodeList(text, positionsSchema)
	if err != nil {
		return nil, err
	}
	var out []PositionEntry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion records

// #region verdict

// Verdict leads: the first free-form field of a conflict reply.
const (
	LeadRelations = "Relations"
	LeadObjects   = "Objects"
)

var (
	reVerdict  = regexp.MustCompile(`\nError:.*?(Yes|No)`)
	reAnalysis = map[string]*regexp.Regexp{
		LeadRelations: analysisPattern(LeadRelations),
		LeadObjects:   analysisPattern(LeadObjects),
	}
)

func analysisPattern(lead string) *regexp.Regexp {
	return regexp.MustCompile(`(` + regexp.QuoteMeta(lead) + `:[\s\S]*?)\s*\nError:`)
}

// analysisFor returns the compiled analysis pattern for lead. Unknown leads
// are compiled on demand.
func analysisFor(lead string) *regexp.Regexp {
	if re, ok := reAnalysis[lead]; ok {
		return re
	}
	return analysisPattern(lead)
}

// VerdictReply is a decoded "...\nError: Yes|No" reply.
type VerdictReply struct {
	Error    bool
	Analysis string
}

// ParseVerdict reads a conflict verdict. lead names the first free-form
// field (LeadRelations or LeadObjects); analysis spans from it to the verdict.
func ParseVerdict(reply, lead string) (VerdictReply, bool) {
	result := reVerdict.FindStringSubmatch(reply)
	analysis := analysisFor(lead).FindStringSubmatch(reply)
	if result == nil || analysis == nil {
		return VerdictReply{}, false
	}
	return VerdictReply{Error: result[1] == "Yes", Analysis: analysis[1]}, true
}

// #endregion verdict
