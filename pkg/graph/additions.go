package graph

import (
	"fmt"

	"github.com/skdevtools/bazel-bsp/pkg/bazel/bazelpb"
	"github.com/skdevtools/bazel-bsp/pkg/logging"
	"github.com/skdevtools/bazel-bsp/pkg/model"
)

// ParseSourceAdditions decodes the small added-files query result used by
// the invalidation engine. It is a restricted variant of Parse: only
// target identities and their declared Source Items are extracted, no
// dependency resolution. Targets not already present in the graph are
// skipped — a brand-new target needs a full re-query, not a patch.
func (p *Parser) ParseSourceAdditions(data []byte, pg *model.ProjectGraph) (map[model.TargetID][]model.SourceItem, error) {
	res, err := bazelpb.DecodeCqueryStream(data)
	if err != nil {
		return nil, fmt.Errorf("added-files query: %w", err)
	}

	b, err := p.bucketize(res)
	if err != nil {
		return nil, err
	}

	additions := make(map[model.TargetID][]model.SourceItem)
	for _, dep := range b.deps {
		cfg, ok := b.configs[dep.configID]
		if !ok {
			continue
		}
		id := model.MakeTargetID(dep.rule.Name, cfg.NormalizedMnemonic)
		existing, ok := pg.Targets[id]
		if !ok {
			logging.Debug("added file belongs to untracked target, skipping", "label", dep.rule.Name)
			continue
		}
		items := p.sourceItems(dep.rule, existing, b.sourceURI)
		if len(items) > 0 {
			additions[id] = items
		}
	}
	return additions, nil
}
