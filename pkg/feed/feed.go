package feed

import (
	"maps"
	"slices"
	"time"

	"github.com/samber/mo"

	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

type Item struct {
	Title       string                    `json:"title"`
	URL         string                    `json:"url"`
	PublishedAt mo.Option[time.Time]      `json:"pubdate"`
	Description mo.Option[string]         `json:"description"`
	SourceTitle string                    `json:"sourceTitle"`
	Image       mo.Option[image.Artifact] `json:"imageUrl"`
}

// Snapshot holds the current items of every registered source. Consumers must replace their view with it as a whole.
type Snapshot map[source.Key][]Item

func (s Snapshot) Clone() Snapshot {
	clone := make(Snapshot, len(s))
	for key, items := range s {
		clone[key] = slices.Clone(items)
	}
	return clone
}

func (s Snapshot) Len() int {
	var count int
	for _, items := range s {
		count += len(items)
	}
	return count
}

// SortItems orders items most-recent-first. Undated items go after the dated ones, ties keep their relative order.
func SortItems(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		aTime, aOk := a.PublishedAt.Get()
		bTime, bOk := b.PublishedAt.Get()

		switch {
		case aOk && bOk:
			return bTime.Compare(aTime)
		case aOk:
			return -1
		case bOk:
			return 1
		default:
			return 0
		}
	})
}

// Merge returns items of all snapshot sources in a single most-recent-first sequence. Sources are visited in key
// order to make the result deterministic.
func (s Snapshot) Merge() []Item {
	merged := make([]Item, 0, s.Len())
	for _, key := range slices.Sorted(maps.Keys(s)) {
		merged = append(merged, s[key]...)
	}

	SortItems(merged)
	return merged
}
