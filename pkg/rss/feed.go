package rss

import (
	"fmt"
	"time"

	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
)

const generator = "newsfeedd"

type Feed struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	Description string  `xml:"description"`
	Date        Date    `xml:"pubDate"`
	Generator   string  `xml:"generator,omitempty"`
	TTL         int     `xml:"ttl,omitempty"`
	Items       []*Item `xml:"item"`
}

// Render builds a feed from items which are expected to be sorted most-recent-first. Items repeated in several
// sources are rendered once.
func Render(title string, link string, description string, items []feed.Item) *Feed {
	result := &Feed{
		Title:       title,
		Link:        link,
		Description: description,
		Generator:   generator,
	}

	for _, item := range items {
		result.Items = append(result.Items, NewItem(item))
		if date, ok := item.PublishedAt.Get(); ok && date.After(result.Date.Time) {
			result.Date = Date{Time: date}
		}
	}
	result.Deduplicate()

	return result
}

// Deduplicate drops items with already seen GUID or link preserving the order of the rest.
func (f *Feed) Deduplicate() {
	var (
		count int
		ids   = make(map[string]struct{})
	)

	for _, item := range f.Items {
		id := item.GUID.ID
		if id == "" {
			id = item.Link
		}

		if id != "" {
			if _, ok := ids[id]; ok {
				continue
			}
			ids[id] = struct{}{}
		}

		f.Items[count] = item
		count++
	}

	clear(f.Items[count:])
	f.Items = f.Items[:count]
}

func (f *Feed) String() string {
	if f == nil {
		return fmt.Sprintf("%#v", f)
	}

	xml, err := Generate(f)
	if err == nil {
		return string(xml)
	}

	return fmt.Sprintf("XML generation error: %s. Go representation: %#v", err, f)
}

type Date struct {
	time.Time
}

type Item struct {
	Title       string   `xml:"title,omitempty"`
	GUID        GUID     `xml:"guid"`
	Link        string   `xml:"link,omitempty"`
	Description string   `xml:"description,omitempty"`
	Date        Date     `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

func NewItem(item feed.Item) *Item {
	result := &Item{
		Title:       item.Title,
		Link:        item.URL,
		Description: item.Description.OrEmpty(),
	}

	if item.URL != "" {
		result.GUID = MakeGUID(item.URL, true)
	}
	if date, ok := item.PublishedAt.Get(); ok {
		result.Date = Date{Time: date}
	}
	if item.SourceTitle != "" {
		result.Categories = []string{item.SourceTitle}
	}

	return result
}

type GUID struct {
	ID          string `xml:",chardata"`
	IsPermaLink *bool  `xml:"isPermaLink,attr,omitempty"`
}

func MakeGUID(id string, isPermaLink bool) GUID {
	guid := GUID{ID: id}
	if !isPermaLink {
		guid.IsPermaLink = &isPermaLink
	}
	return guid
}
