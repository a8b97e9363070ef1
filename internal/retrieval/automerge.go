package retrieval

import (
	"context"
)

// autoMerge replaces groups of retrieved siblings by their parent once the
// retrieved share of the parent's children reaches the merge ratio. The
// parent scores the mean of the merged children. Merging repeats upward
// until nothing changes, at most depth times.
func (r *Retriever) autoMerge(ctx context.Context, index string, nodes []SourceNode, depth int) ([]SourceNode, error) {
	for round := 0; round < depth; round++ {
		groups := make(map[string][]int)
		var parentIDs []string
		for i, n := range nodes {
			if n.parentID == "" {
				continue
			}
			if _, ok := groups[n.parentID]; !ok {
				parentIDs = append(parentIDs, n.parentID)
			}
			groups[n.parentID] = append(groups[n.parentID], i)
		}
		if len(parentIDs) == 0 {
			break
		}

		parents, err := r.docs.Nodes(ctx, index, parentIDs)
		if err != nil {
			return nil, err
		}

		merged := make(map[int]bool)
		var promoted []SourceNode
		for _, pid := range parentIDs {
			parent, ok := parents[pid]
			if !ok || len(parent.ChildIDs) == 0 {
				continue
			}

			children := make(map[string]bool, len(parent.ChildIDs))
			for _, id := range parent.ChildIDs {
				children[id] = true
			}
			retrieved := make(map[string]bool)
			var sum float64
			for _, i := range groups[pid] {
				if children[nodes[i].ID] && !retrieved[nodes[i].ID] {
					retrieved[nodes[i].ID] = true
					sum += nodes[i].Score
				}
			}

			ratio := float64(len(retrieved)) / float64(len(parent.ChildIDs))
			if len(retrieved) == 0 || ratio+1e-9 < r.opts.MergeRatio {
				continue
			}

			for _, i := range groups[pid] {
				merged[i] = true
			}
			promoted = append(promoted, SourceNode{
				ID:        parent.ID,
				Text:      parent.Text,
				Score:     sum / float64(len(retrieved)),
				IndexName: index,
				DocPath:   parent.DocPath,
				Position:  parent.Position,
				Metadata:  parent.Metadata,
				parentID:  parent.ParentID,
			})
			r.logger.Debug("merged nodes into parent", "index", index, "parent", parent.ID, "children", len(retrieved))
		}
		if len(promoted) == 0 {
			break
		}

		next := make([]SourceNode, 0, len(nodes)-len(merged)+len(promoted))
		for i, n := range nodes {
			if !merged[i] {
				next = append(next, n)
			}
		}
		nodes = append(next, promoted...)
	}

	sortByScore(nodes)
	return nodes, nil
}
