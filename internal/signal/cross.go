package signal

import (
	"sort"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/sources"
)

type pairKey struct{ a, b int }

// CrossPlatform clusters items that share keywords and emits one layer-2
// signal per cluster spanning enough distinct platforms.
func CrossPlatform(items []radar.Item, tok radar.Tokenizer, th Thresholds, now int64) []radar.Signal {
	n := len(items)
	if n < 2 {
		return nil
	}

	index := map[string][]int{}
	for i, it := range items {
		for _, kw := range tok.Tokens(it.Title) {
			postings := index[kw]
			if len(postings) > 0 && postings[len(postings)-1] == i {
				continue
			}
			index[kw] = append(postings, i)
		}
	}

	keywords := make([]string, 0, len(index))
	for kw, postings := range index {
		if len(postings) < 2 || (th.CrossKeywordCap > 0 && len(postings) > th.CrossKeywordCap) {
			continue
		}
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	shared := map[pairKey]map[string]struct{}{}
	for _, kw := range keywords {
		postings := index[kw]
		for x := 0; x < len(postings); x++ {
			for y := x + 1; y < len(postings); y++ {
				k := pairKey{postings[x], postings[y]}
				set := shared[k]
				if set == nil {
					set = map[string]struct{}{}
					shared[k] = set
				}
				set[kw] = struct{}{}
			}
		}
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) {
		px, py := find(x), find(y)
		if px == py {
			return
		}
		// Keep the lowest index as root so the representative is the first encountered item.
		if px < py {
			parent[py] = px
		} else {
			parent[px] = py
		}
	}
	for k, set := range shared {
		if len(set) >= th.CrossMinKeywords {
			union(k.a, k.b)
		}
	}

	groups := map[int][]int{}
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	var out []radar.Signal
	for _, root := range roots {
		members := groups[root]
		if len(members) < 2 {
			continue
		}
		platformItems := map[string]radar.PlatformItem{}
		var platforms []string
		for _, idx := range members {
			it := items[idx]
			plat := sources.NormalizePlatform(it.Platform)
			if plat == "" {
				plat = sources.NormalizePlatform(it.Source)
			}
			if _, ok := platformItems[plat]; ok {
				continue
			}
			platforms = append(platforms, plat)
			platformItems[plat] = radar.PlatformItem{
				Title:           it.Title,
				Source:          it.Source,
				HotValue:        it.HotValue,
				Position:        it.Position,
				HotValueHistory: append([]radar.HistoryPoint(nil), it.History[radar.FieldHotValue]...),
				PositionHistory: append([]radar.HistoryPoint(nil), it.History[radar.FieldPosition]...),
			}
		}
		if len(platforms) < th.CrossMinPlatforms {
			continue
		}
		sort.Strings(platforms)

		memberSet := make(map[int]bool, len(members))
		for _, idx := range members {
			memberSet[idx] = true
		}
		common := map[string]struct{}{}
		for k, set := range shared {
			if len(set) >= th.CrossMinKeywords && memberSet[k.a] && memberSet[k.b] {
				for kw := range set {
					common[kw] = struct{}{}
				}
			}
		}
		commonList := make([]string, 0, len(common))
		for kw := range common {
			commonList = append(commonList, kw)
		}
		sort.Strings(commonList)

		rep := items[members[0]]
		out = append(out, radar.Signal{
			SignalID:         CrossSignalID(rep.Title),
			Type:             radar.SignalCrossPlatform,
			Layer:            radar.LayerCross,
			Title:            rep.Title,
			Platforms:        platforms,
			SourceCollection: radar.SourceCollectionCross,
			DetectedAt:       now,
			UpdatedAt:        now,
			HotValueHistory:  append([]radar.HistoryPoint(nil), rep.History[radar.FieldHotValue]...),
			PositionHistory:  append([]radar.HistoryPoint(nil), rep.History[radar.FieldPosition]...),
			FirstSeenAt:      rep.FirstSeenAt,
			LastSeenAt:       rep.LastSeenAt,
			CrossPlatform: &radar.CrossPlatformDetails{
				PlatformCount:  len(platforms),
				PlatformItems:  platformItems,
				CommonKeywords: commonList,
			},
		})
	}
	return out
}
