package rss

import (
	"bytes"
	"encoding/xml"
	"io"
)

const ContentType = "application/rss+xml"

type rssRoot struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel *Feed    `xml:"channel"`
}

func Write(feed *Feed, writer io.Writer) error {
	if _, err := writer.Write([]byte(xml.Header)); err != nil {
		return err
	}

	rss := rssRoot{Version: "2.0", Channel: feed}
	encoder := xml.NewEncoder(writer)
	encoder.Indent("", "    ")
	return encoder.Encode(&rss)
}

func Generate(feed *Feed) ([]byte, error) {
	var buffer bytes.Buffer
	if err := Write(feed, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (g *GUID) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if g.ID == "" {
		return nil
	}

	if g.IsPermaLink != nil {
		value := "true"
		if !*g.IsPermaLink {
			value = "false"
		}

		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: "isPermaLink"},
			Value: value,
		})
	}

	return e.EncodeElement(g.ID, start)
}

func (d *Date) MarshalXML(encoder *xml.Encoder, start xml.StartElement) error {
	if d.IsZero() {
		return nil
	}
	return encoder.EncodeElement(d.UTC().Format("Mon, 02 Jan 2006 15:04:05")+" GMT", start)
}
