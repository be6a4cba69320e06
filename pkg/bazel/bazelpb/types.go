// Package bazelpb holds a typed subset of the messages bazel emits for
// `cquery --output=streamed_proto` (blaze_query.Target plus the analysis_v2
// envelope) and `aquery --output=proto` (analysis_v2.ActionGraphContainer).
//
// Only the fields this server consumes are modelled. Decoding is done
// directly with protowire rather than generated bindings so the rest of the
// codebase never touches a generic attribute tree: bytes go straight into
// these records.
package bazelpb

// Discriminator values for Target.Type, from blaze_query's build.proto.
const (
	TargetRule          = 1
	TargetSourceFile    = 2
	TargetGeneratedFile = 3
	TargetPackageGroup  = 4
)

// Target is blaze_query.Target: a tagged union of the result entry kinds.
type Target struct {
	Type          int32
	Rule          *Rule
	SourceFile    *SourceFile
	GeneratedFile *GeneratedFile
}

// Rule is blaze_query.Rule restricted to name, class, attributes and inputs.
type Rule struct {
	Name       string
	RuleClass  string
	Attributes []Attribute
	RuleInputs []string
}

// Attribute is blaze_query.Attribute. Only the value shapes the server
// reads are kept: string, string list and boolean.
type Attribute struct {
	Name            string
	Type            int32
	StringValue     string
	StringListValue []string
	BooleanValue    bool
}

// Attribute type discriminators from build.proto, for the shapes we read.
const (
	AttrString     = 2
	AttrLabel      = 3
	AttrStringList = 5
	AttrLabelList  = 6
	AttrBoolean    = 14
)

// SourceFile is blaze_query.SourceFile (name + location).
type SourceFile struct {
	Name     string
	Location string
}

// GeneratedFile is blaze_query.GeneratedFile.
type GeneratedFile struct {
	Name           string
	GeneratingRule string
}

// Configuration is analysis_v2.Configuration.
type Configuration struct {
	ID           uint32
	Mnemonic     string
	PlatformName string
	Checksum     string
	IsTool       bool
}

// ConfiguredTarget is analysis_v2.ConfiguredTarget: a target plus the ID of
// the configuration it was analyzed under.
type ConfiguredTarget struct {
	Target          *Target
	ConfigurationID uint32
}

// CqueryResult is analysis_v2.CqueryResult, the cquery output envelope.
type CqueryResult struct {
	Results        []ConfiguredTarget
	Configurations []Configuration
}

// ActionGraphContainer is analysis_v2.ActionGraphContainer, the aquery
// output envelope.
type ActionGraphContainer struct {
	Artifacts      []Artifact
	Actions        []Action
	Targets        []ActionTarget
	DepSetOfFiles  []DepSetOfFiles
	Configurations []Configuration
	PathFragments  []PathFragment
}

// ActionTarget is analysis_v2.Target (the aquery flavor, keyed by numeric ID).
type ActionTarget struct {
	ID    uint32
	Label string
}

// Action is analysis_v2.Action restricted to what compile-action extraction
// needs.
type Action struct {
	TargetID        uint32
	Mnemonic        string
	ConfigurationID uint32
	Arguments       []string
	InputDepSetIDs  []uint32
	OutputIDs       []uint32
	PrimaryOutputID uint32
}

// Artifact is analysis_v2.Artifact. ExecPath is set directly by older
// bazel versions; newer ones reference a PathFragment tree instead.
type Artifact struct {
	ID             uint32
	ExecPath       string
	PathFragmentID uint32
}

// DepSetOfFiles is analysis_v2.DepSetOfFiles, the shared input-set node.
type DepSetOfFiles struct {
	ID                  uint32
	TransitiveDepSetIDs []uint32
	DirectArtifactIDs   []uint32
}

// PathFragment is analysis_v2.PathFragment, one segment of an exec path.
type PathFragment struct {
	ID       uint32
	Label    string
	ParentID uint32
}
