package locations

import (
	"fmt"
	"sort"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

// Deduplicate merges mentions with equal normalized text or points within
// tolerance. Merging is transitive. The survivor is the highest confidence
// member and carries the union of every member's chunks. Output keeps the
// order of each group's first appearance.
func Deduplicate(mentions []findingModel.LocationMention, tolerance float64) []findingModel.LocationMention {
	mentions = append([]findingModel.LocationMention(nil), mentions...)
	parent := make([]int, len(mentions))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	byText := make(map[string]int)
	for i := range mentions {
		if mentions[i].Normalized == "" {
			mentions[i].Normalized = Normalize(mentions[i].Text)
		}
		key := mentions[i].Normalized
		if first, ok := byText[key]; ok && key != "" {
			union(first, i)
		} else {
			byText[key] = i
		}
		for j := 0; j < i; j++ {
			if near(mentions[i].Point, mentions[j].Point, tolerance) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range mentions {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	out := make([]findingModel.LocationMention, 0, len(roots))
	for _, r := range roots {
		out = append(out, merge(mentions, groups[r]))
	}
	return out
}

func merge(mentions []findingModel.LocationMention, members []int) findingModel.LocationMention {
	best := members[0]
	for _, m := range members[1:] {
		if mentions[m].Confidence > mentions[best].Confidence {
			best = m
		}
	}
	survivor := mentions[best]

	chunkSet := make(map[int]bool)
	for _, m := range members {
		for _, idx := range mentions[m].ChunkIndices {
			chunkSet[idx] = true
		}
		//an explicit mention outranks an inferred one of the same place
		if !mentions[m].Inferred {
			survivor.Inferred = false
		}
		if survivor.Point == nil && mentions[m].Point != nil {
			p := *mentions[m].Point
			survivor.Point = &p
			survivor.GeocodedBy = mentions[m].GeocodedBy
			survivor.GeocodedAt = mentions[m].GeocodedAt
		}
		if survivor.Address == "" {
			survivor.Address = mentions[m].Address
		}
	}
	survivor.ChunkIndices = make([]int, 0, len(chunkSet))
	for idx := range chunkSet {
		survivor.ChunkIndices = append(survivor.ChunkIndices, idx)
	}
	sort.Ints(survivor.ChunkIndices)
	return survivor
}

// assignIds numbers mentions in their final order.
func assignIds(runId string, mentions []findingModel.LocationMention) {
	for i := range mentions {
		mentions[i].Id = fmt.Sprintf("loc_%03d", i+1)
		mentions[i].RunId = runId
	}
}
