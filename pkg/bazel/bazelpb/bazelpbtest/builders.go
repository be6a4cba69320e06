// Package bazelpbtest builds wire-format fixtures for the bazelpb message
// subset. Tests assemble query output from these helpers instead of
// checking in binary fixtures.
package bazelpbtest

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// AttrSpec describes one rule attribute to encode.
type AttrSpec struct {
	Name string
	Type int32
	Str  string
	List []string
	Bool bool
}

// RuleSpec describes one blaze_query.Rule to encode.
type RuleSpec struct {
	Name   string
	Class  string
	Attrs  []AttrSpec
	Inputs []string
}

// StringListAttr is a convenience for the most common attribute shape.
func StringListAttr(name string, values ...string) AttrSpec {
	return AttrSpec{Name: name, Type: 6, List: values}
}

// StringAttr encodes a single-string attribute.
func StringAttr(name, value string) AttrSpec {
	return AttrSpec{Name: name, Type: 2, Str: value}
}

// BoolAttr encodes a boolean attribute.
func BoolAttr(name string, value bool) AttrSpec {
	return AttrSpec{Name: name, Type: 14, Bool: value}
}

func appendAttr(b []byte, a AttrSpec) []byte {
	var m []byte
	m = protowire.AppendTag(m, 1, protowire.BytesType)
	m = protowire.AppendString(m, a.Name)
	m = protowire.AppendTag(m, 2, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(a.Type))
	if a.Str != "" {
		m = protowire.AppendTag(m, 5, protowire.BytesType)
		m = protowire.AppendString(m, a.Str)
	}
	for _, s := range a.List {
		m = protowire.AppendTag(m, 6, protowire.BytesType)
		m = protowire.AppendString(m, s)
	}
	if a.Bool {
		m = protowire.AppendTag(m, 14, protowire.VarintType)
		m = protowire.AppendVarint(m, 1)
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// RuleTarget encodes a blaze_query.Target wrapping a rule.
func RuleTarget(spec RuleSpec) []byte {
	var r []byte
	r = protowire.AppendTag(r, 1, protowire.BytesType)
	r = protowire.AppendString(r, spec.Name)
	r = protowire.AppendTag(r, 2, protowire.BytesType)
	r = protowire.AppendString(r, spec.Class)
	for _, a := range spec.Attrs {
		r = appendAttr(r, a)
	}
	for _, in := range spec.Inputs {
		r = protowire.AppendTag(r, 5, protowire.BytesType)
		r = protowire.AppendString(r, in)
	}

	var t []byte
	t = protowire.AppendTag(t, 1, protowire.VarintType)
	t = protowire.AppendVarint(t, 1) // RULE
	t = protowire.AppendTag(t, 2, protowire.BytesType)
	t = protowire.AppendBytes(t, r)
	return t
}

// SourceFileTarget encodes a blaze_query.Target wrapping a source file.
func SourceFileTarget(name, location string) []byte {
	var sf []byte
	sf = protowire.AppendTag(sf, 1, protowire.BytesType)
	sf = protowire.AppendString(sf, name)
	if location != "" {
		sf = protowire.AppendTag(sf, 2, protowire.BytesType)
		sf = protowire.AppendString(sf, location)
	}

	var t []byte
	t = protowire.AppendTag(t, 1, protowire.VarintType)
	t = protowire.AppendVarint(t, 2) // SOURCE_FILE
	t = protowire.AppendTag(t, 3, protowire.BytesType)
	t = protowire.AppendBytes(t, sf)
	return t
}

// PackageGroupTarget encodes an unexpected result shape, for error tests.
func PackageGroupTarget() []byte {
	var t []byte
	t = protowire.AppendTag(t, 1, protowire.VarintType)
	t = protowire.AppendVarint(t, 4) // PACKAGE_GROUP
	return t
}

// ConfiguredTarget wraps an encoded Target with its configuration ID.
func ConfiguredTarget(target []byte, configID uint32) []byte {
	var ct []byte
	ct = protowire.AppendTag(ct, 1, protowire.BytesType)
	ct = protowire.AppendBytes(ct, target)
	ct = protowire.AppendTag(ct, 3, protowire.VarintType)
	ct = protowire.AppendVarint(ct, uint64(configID))
	return ct
}

// Configuration encodes an analysis_v2.Configuration.
func Configuration(id uint32, mnemonic string) []byte {
	var c []byte
	c = protowire.AppendTag(c, 1, protowire.VarintType)
	c = protowire.AppendVarint(c, uint64(id))
	c = protowire.AppendTag(c, 2, protowire.BytesType)
	c = protowire.AppendString(c, mnemonic)
	c = protowire.AppendTag(c, 4, protowire.BytesType)
	c = protowire.AppendString(c, mnemonic+"-checksum")
	return c
}

// CqueryResult encodes one CqueryResult frame body from configured targets
// and configurations.
func CqueryResult(configuredTargets [][]byte, configurations [][]byte) []byte {
	var m []byte
	for _, ct := range configuredTargets {
		m = protowire.AppendTag(m, 1, protowire.BytesType)
		m = protowire.AppendBytes(m, ct)
	}
	for _, c := range configurations {
		m = protowire.AppendTag(m, 2, protowire.BytesType)
		m = protowire.AppendBytes(m, c)
	}
	return m
}

// Stream length-delimits frames the way `--output=streamed_proto` does.
func Stream(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = protowire.AppendVarint(out, uint64(len(f)))
		out = append(out, f...)
	}
	return out
}

// ToolConfiguration encodes an exec configuration with is_tool set.
func ToolConfiguration(id uint32, mnemonic string) []byte {
	c := Configuration(id, mnemonic)
	c = protowire.AppendTag(c, 5, protowire.VarintType)
	c = protowire.AppendVarint(c, 1)
	return c
}

// PathFragmentSpec describes one analysis_v2.PathFragment to encode.
type PathFragmentSpec struct {
	Label    string
	ParentID uint32
}

// ActionSpec describes one analysis_v2.Action to encode.
type ActionSpec struct {
	TargetID        uint32
	Mnemonic        string
	ConfigurationID uint32
	Arguments       []string
	InputDepSetIDs  []uint32
	OutputIDs       []uint32
	PrimaryOutputID uint32
}

// ActionGraphSpec describes an ActionGraphContainer to encode.
type ActionGraphSpec struct {
	Targets        map[uint32]string // id -> label
	Actions        []ActionSpec
	Configurations map[uint32]string // id -> mnemonic
	ToolConfigIDs  []uint32          // subset of Configurations encoded with is_tool
	Artifacts      map[uint32]string // id -> exec path
	DepSets        map[uint32][]uint32

	// FragmentArtifacts reference a path-fragment chain instead of carrying
	// an exec path directly.
	FragmentArtifacts map[uint32]uint32 // artifact id -> fragment id
	PathFragments     map[uint32]PathFragmentSpec
}

// ActionGraph encodes an analysis_v2.ActionGraphContainer.
func ActionGraph(spec ActionGraphSpec) []byte {
	var out []byte
	for id, execPath := range spec.Artifacts {
		var a []byte
		a = protowire.AppendTag(a, 1, protowire.VarintType)
		a = protowire.AppendVarint(a, uint64(id))
		a = protowire.AppendTag(a, 2, protowire.BytesType)
		a = protowire.AppendString(a, execPath)
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, a)
	}
	for _, act := range spec.Actions {
		var a []byte
		a = protowire.AppendTag(a, 1, protowire.VarintType)
		a = protowire.AppendVarint(a, uint64(act.TargetID))
		a = protowire.AppendTag(a, 4, protowire.BytesType)
		a = protowire.AppendString(a, act.Mnemonic)
		a = protowire.AppendTag(a, 5, protowire.VarintType)
		a = protowire.AppendVarint(a, uint64(act.ConfigurationID))
		for _, arg := range act.Arguments {
			a = protowire.AppendTag(a, 6, protowire.BytesType)
			a = protowire.AppendString(a, arg)
		}
		for _, id := range act.InputDepSetIDs {
			a = protowire.AppendTag(a, 8, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(id))
		}
		for _, id := range act.OutputIDs {
			a = protowire.AppendTag(a, 9, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(id))
		}
		if act.PrimaryOutputID != 0 {
			a = protowire.AppendTag(a, 13, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(act.PrimaryOutputID))
		}
		out = protowire.AppendTag(out, 2, protowire.BytesType)
		out = protowire.AppendBytes(out, a)
	}
	for id, label := range spec.Targets {
		var t []byte
		t = protowire.AppendTag(t, 1, protowire.VarintType)
		t = protowire.AppendVarint(t, uint64(id))
		t = protowire.AppendTag(t, 2, protowire.BytesType)
		t = protowire.AppendString(t, label)
		out = protowire.AppendTag(out, 3, protowire.BytesType)
		out = protowire.AppendBytes(out, t)
	}
	for id, members := range spec.DepSets {
		var d []byte
		d = protowire.AppendTag(d, 1, protowire.VarintType)
		d = protowire.AppendVarint(d, uint64(id))
		for _, m := range members {
			d = protowire.AppendTag(d, 3, protowire.VarintType)
			d = protowire.AppendVarint(d, uint64(m))
		}
		out = protowire.AppendTag(out, 4, protowire.BytesType)
		out = protowire.AppendBytes(out, d)
	}
	for id, frag := range spec.FragmentArtifacts {
		var a []byte
		a = protowire.AppendTag(a, 1, protowire.VarintType)
		a = protowire.AppendVarint(a, uint64(id))
		a = protowire.AppendTag(a, 4, protowire.VarintType)
		a = protowire.AppendVarint(a, uint64(frag))
		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, a)
	}
	for id, mnemonic := range spec.Configurations {
		c := Configuration(id, mnemonic)
		for _, toolID := range spec.ToolConfigIDs {
			if toolID == id {
				c = ToolConfiguration(id, mnemonic)
				break
			}
		}
		out = protowire.AppendTag(out, 5, protowire.BytesType)
		out = protowire.AppendBytes(out, c)
	}
	for id, f := range spec.PathFragments {
		var p []byte
		p = protowire.AppendTag(p, 1, protowire.VarintType)
		p = protowire.AppendVarint(p, uint64(id))
		p = protowire.AppendTag(p, 2, protowire.BytesType)
		p = protowire.AppendString(p, f.Label)
		if f.ParentID != 0 {
			p = protowire.AppendTag(p, 3, protowire.VarintType)
			p = protowire.AppendVarint(p, uint64(f.ParentID))
		}
		out = protowire.AppendTag(out, 8, protowire.BytesType)
		out = protowire.AppendBytes(out, p)
	}
	return out
}
