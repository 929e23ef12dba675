package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/mmcdole/gofeed"
	"github.com/samber/mo"
	"golang.org/x/net/html/charset"

	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/parse"
	"github.com/KonishchevDmitry/newsfeedd/pkg/url"
)

var xmlEncodingRe = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding=)(["'])[^"']*(["'])`)

// Parse parses RSS, Atom or JSON feed. Items are returned in the document order.
func Parse(ctx context.Context, data []byte, request Request) (*Result, error) {
	data, err := decode(data, request.Encoding)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	document, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	warnf := logging.L(ctx).Debugf
	if request.LogWarnings {
		warnf = logging.L(ctx).Warnf
	}

	result := &Result{
		Title: parse.TrimText(document.Title),
		Items: make([]feed.Item, 0, len(document.Items)),
	}

	for index, documentItem := range document.Items {
		title := parse.HTMLToText(documentItem.Title)
		if title == "" {
			warnf("%s: skipping item #%d: it has no title.", request.URL, index+1)
			continue
		}

		link, err := url.Resolve(request.URL, documentItem.Link)
		if err != nil {
			warnf("%s: %q item has an invalid link: %s.", request.URL, title, err)
		} else if link == "" {
			warnf("%s: %q item has no link.", request.URL, title)
		}

		item := feed.Item{
			Title: title,
			URL:   link,
		}

		if date, ok := getDate(documentItem).Get(); ok {
			item.PublishedAt = mo.Some(date)
		} else {
			warnf("%s: %q item has no valid publish date.", request.URL, title)
		}

		description := documentItem.Description
		if description == "" {
			description = documentItem.Content
		}
		if description = parse.HTMLToText(description); description != "" {
			item.Description = mo.Some(description)
		}

		result.Items = append(result.Items, item)
	}

	return result, nil
}

func getDate(item *gofeed.Item) mo.Option[time.Time] {
	for _, date := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if date != nil && !date.IsZero() {
			return mo.Some(*date)
		}
	}
	return mo.None[time.Time]()
}

// decode converts the document to UTF-8 according to the encoding hint. XML declaration is patched to match the
// new encoding, so the parser won't try to decode the document for the second time.
func decode(data []byte, encoding string) ([]byte, error) {
	if encoding == "" {
		return data, nil
	}

	_, name := charset.Lookup(encoding)
	if name == "" {
		return nil, fmt.Errorf("unknown encoding: %q", encoding)
	} else if name == "utf-8" {
		return data, nil
	}

	reader, err := charset.NewReaderLabel(encoding, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unknown encoding: %q", encoding)
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the document using %s encoding: %w", encoding, err)
	}

	return xmlEncodingRe.ReplaceAll(decoded, []byte("${1}${2}UTF-8${3}")), nil
}
