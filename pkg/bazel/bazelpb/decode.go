package bazelpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeCqueryStream decodes `--output=streamed_proto` cquery output: a
// sequence of varint-length-delimited CqueryResult frames, each typically
// carrying a single configured target. Frames are merged into one result.
func DecodeCqueryStream(data []byte) (*CqueryResult, error) {
	out := &CqueryResult{}
	for len(data) > 0 {
		size, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, fmt.Errorf("malformed frame length: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if uint64(len(data)) < size {
			return nil, fmt.Errorf("truncated frame: want %d bytes, have %d", size, len(data))
		}
		if err := decodeCqueryResult(data[:size], out); err != nil {
			return nil, err
		}
		data = data[size:]
	}
	return out, nil
}

// DecodeActionGraph decodes `--output=proto` aquery output: a single
// ActionGraphContainer message.
func DecodeActionGraph(data []byte) (*ActionGraphContainer, error) {
	out := &ActionGraphContainer{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1: // artifacts
			a, err := decodeArtifact(b)
			if err != nil {
				return err
			}
			out.Artifacts = append(out.Artifacts, a)
		case 2: // actions
			a, err := decodeAction(b)
			if err != nil {
				return err
			}
			out.Actions = append(out.Actions, a)
		case 3: // targets
			t, err := decodeActionTarget(b)
			if err != nil {
				return err
			}
			out.Targets = append(out.Targets, t)
		case 4: // dep_set_of_files
			d, err := decodeDepSet(b)
			if err != nil {
				return err
			}
			out.DepSetOfFiles = append(out.DepSetOfFiles, d)
		case 5: // configuration
			c, err := decodeConfiguration(b)
			if err != nil {
				return err
			}
			out.Configurations = append(out.Configurations, c)
		case 8: // path_fragments
			p, err := decodePathFragment(b)
			if err != nil {
				return err
			}
			out.PathFragments = append(out.PathFragments, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("action graph container: %w", err)
	}
	return out, nil
}

func decodeCqueryResult(data []byte, out *CqueryResult) error {
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1: // results
			ct, err := decodeConfiguredTarget(b)
			if err != nil {
				return err
			}
			out.Results = append(out.Results, ct)
		case 2: // configurations
			c, err := decodeConfiguration(b)
			if err != nil {
				return err
			}
			out.Configurations = append(out.Configurations, c)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cquery result: %w", err)
	}
	return nil
}

func decodeConfiguredTarget(data []byte) (ConfiguredTarget, error) {
	var out ConfiguredTarget
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1: // target
			t, err := DecodeTarget(b)
			if err != nil {
				return err
			}
			out.Target = t
		case 3: // configuration_id
			out.ConfigurationID = uint32(v)
		}
		return nil
	})
	return out, err
}

// DecodeTarget decodes one blaze_query.Target message.
func DecodeTarget(data []byte) (*Target, error) {
	out := &Target{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1: // type
			out.Type = int32(v)
		case 2: // rule
			r, err := decodeRule(b)
			if err != nil {
				return err
			}
			out.Rule = r
		case 3: // source_file
			sf, err := decodeSourceFile(b)
			if err != nil {
				return err
			}
			out.SourceFile = sf
		case 4: // generated_file
			gf, err := decodeGeneratedFile(b)
			if err != nil {
				return err
			}
			out.GeneratedFile = gf
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return out, nil
}

func decodeRule(data []byte) (*Rule, error) {
	out := &Rule{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.Name = string(b)
		case 2:
			out.RuleClass = string(b)
		case 4:
			a, err := decodeAttribute(b)
			if err != nil {
				return err
			}
			out.Attributes = append(out.Attributes, a)
		case 5:
			out.RuleInputs = append(out.RuleInputs, string(b))
		}
		return nil
	})
	return out, err
}

func decodeAttribute(data []byte) (Attribute, error) {
	var out Attribute
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.Name = string(b)
		case 2:
			out.Type = int32(v)
		case 5:
			out.StringValue = string(b)
		case 6:
			out.StringListValue = append(out.StringListValue, string(b))
		case 14:
			out.BooleanValue = v != 0
		}
		return nil
	})
	return out, err
}

func decodeSourceFile(data []byte) (*SourceFile, error) {
	out := &SourceFile{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.Name = string(b)
		case 2:
			out.Location = string(b)
		}
		return nil
	})
	return out, err
}

func decodeGeneratedFile(data []byte) (*GeneratedFile, error) {
	out := &GeneratedFile{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.Name = string(b)
		case 2:
			out.GeneratingRule = string(b)
		}
		return nil
	})
	return out, err
}

func decodeConfiguration(data []byte) (Configuration, error) {
	var out Configuration
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.ID = uint32(v)
		case 2:
			out.Mnemonic = string(b)
		case 3:
			out.PlatformName = string(b)
		case 4:
			out.Checksum = string(b)
		case 5:
			out.IsTool = v != 0
		}
		return nil
	})
	return out, err
}

func decodeActionTarget(data []byte) (ActionTarget, error) {
	var out ActionTarget
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.ID = uint32(v)
		case 2:
			out.Label = string(b)
		}
		return nil
	})
	return out, err
}

func decodeAction(data []byte) (Action, error) {
	var out Action
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.TargetID = uint32(v)
		case 4:
			out.Mnemonic = string(b)
		case 5:
			out.ConfigurationID = uint32(v)
		case 6:
			out.Arguments = append(out.Arguments, string(b))
		case 8:
			out.InputDepSetIDs = appendUint32s(out.InputDepSetIDs, typ, v, b)
		case 9:
			out.OutputIDs = appendUint32s(out.OutputIDs, typ, v, b)
		case 13:
			out.PrimaryOutputID = uint32(v)
		}
		return nil
	})
	return out, err
}

func decodeArtifact(data []byte) (Artifact, error) {
	var out Artifact
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.ID = uint32(v)
		case 2:
			out.ExecPath = string(b)
		case 4:
			out.PathFragmentID = uint32(v)
		}
		return nil
	})
	return out, err
}

func decodeDepSet(data []byte) (DepSetOfFiles, error) {
	var out DepSetOfFiles
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.ID = uint32(v)
		case 2:
			out.TransitiveDepSetIDs = appendUint32s(out.TransitiveDepSetIDs, typ, v, b)
		case 3:
			out.DirectArtifactIDs = appendUint32s(out.DirectArtifactIDs, typ, v, b)
		}
		return nil
	})
	return out, err
}

func decodePathFragment(data []byte) (PathFragment, error) {
	var out PathFragment
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error {
		switch num {
		case 1:
			out.ID = uint32(v)
		case 2:
			out.Label = string(b)
		case 3:
			out.ParentID = uint32(v)
		}
		return nil
	})
	return out, err
}

// eachField walks one message's wire fields. Varint fields arrive in v,
// length-delimited fields in b; unknown fields and wire types are skipped.
func eachField(data []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, b []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			if err := fn(num, typ, v, nil); err != nil {
				return err
			}
			data = data[n:]
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			if err := fn(num, typ, 0, b); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

// appendUint32s handles a repeated uint32 field in either packed or
// unpacked encoding.
func appendUint32s(dst []uint32, typ protowire.Type, v uint64, b []byte) []uint32 {
	if typ == protowire.VarintType {
		return append(dst, uint32(v))
	}
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst
		}
		dst = append(dst, uint32(v))
		b = b[n:]
	}
	return dst
}

// Attr returns the rule attribute with the given name, or nil.
func (r *Rule) Attr(name string) *Attribute {
	for i := range r.Attributes {
		if r.Attributes[i].Name == name {
			return &r.Attributes[i]
		}
	}
	return nil
}

// StringAttr returns the string value of the named attribute, or "".
func (r *Rule) StringAttr(name string) string {
	if a := r.Attr(name); a != nil {
		return a.StringValue
	}
	return ""
}

// StringListAttr returns the string-list value of the named attribute.
func (r *Rule) StringListAttr(name string) []string {
	if a := r.Attr(name); a != nil {
		return a.StringListValue
	}
	return nil
}

// BoolAttr returns the boolean value of the named attribute.
func (r *Rule) BoolAttr(name string) bool {
	if a := r.Attr(name); a != nil {
		return a.BooleanValue
	}
	return false
}
