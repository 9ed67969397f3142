// SPDX-License-Identifier: MIT

package epg

import "sort"

// FindBest looks up the entry of nameToID closest to name. maxDist is the
// largest accepted edit distance. Ties resolve to the lexically smallest key.
func FindBest(name string, nameToID map[string]string, maxDist int) (string, bool) {
	key := NameKey(name)

	if id, ok := nameToID[key]; ok {
		return id, true
	}

	keys := make([]string, 0, len(nameToID))
	for k := range nameToID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bestID := ""
	bestDist := maxDist + 1
	for _, k := range keys {
		if dist := levenshtein(key, k); dist < bestDist {
			bestDist = dist
			bestID = nameToID[k]
		}
	}

	if bestDist <= maxDist {
		return bestID, true
	}
	return "", false
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	lenA, lenB := len(ra), len(rb)
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	prev := make([]int, lenB+1)
	cur := make([]int, lenB+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= lenA; i++ {
		cur[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[lenB]
}
