package topics

import (
	"strings"

	"smartnotes/core"
)

// relatedThreshold is the minimum Jaccard similarity between two topics'
// word sets for them to count as related.
const relatedThreshold = 0.1

// Relationships maps each topic ID to the IDs of related topics, judged
// by word overlap (Jaccard similarity) of name plus description. Related
// lists preserve the set's topic order.
func Relationships(set *core.TopicSet) map[string][]string {
	ids := set.IDs()
	words := make(map[string]map[string]struct{}, len(ids))
	for _, id := range ids {
		topic, _ := set.Get(id)
		words[id] = wordSet(topic.Name + " " + topic.Description)
	}

	relationships := make(map[string][]string, len(ids))
	for _, id := range ids {
		related := []string{}
		for _, other := range ids {
			if other == id {
				continue
			}
			if jaccard(words[id], words[other]) > relatedThreshold {
				related = append(related, other)
			}
		}
		relationships[id] = related
	}
	return relationships
}

// wordSet lowercases and splits text into a set of words.
func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| for two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
