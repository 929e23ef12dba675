package bridge

import (
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

const (
	NotificationAddFeed       = "ADD_FEED"
	NotificationRequestQRCode = "REQUEST_QR_CODE"
	NotificationNewsItems     = "NEWS_ITEMS"
	NotificationNewsfeedError = "NEWSFEED_ERROR"
	NotificationQRCodeImage   = "QR_CODE_IMAGE"

	// Older consumers request images under this name
	notificationGenerateQRCode = "GENERATE_QR_CODE"
)

// Command is a message sent by a consumer to the engine.
type Command interface {
	Notification() string
	command()
}

// Event is a message sent by the engine to consumers.
type Event interface {
	Notification() string
	event()
}

type RegisterSource struct {
	Descriptor source.Descriptor
}

func (RegisterSource) Notification() string { return NotificationAddFeed }
func (RegisterSource) command()             {}

type RequestImage struct {
	URL string
}

func (RequestImage) Notification() string { return NotificationRequestQRCode }
func (RequestImage) command()             {}

// ItemsSnapshot carries the current items of every registered source. It replaces everything a consumer has seen
// before.
type ItemsSnapshot struct {
	Feeds feed.Snapshot
}

func (ItemsSnapshot) Notification() string { return NotificationNewsItems }
func (ItemsSnapshot) event()               {}

type SourceError struct {
	Source source.Key
	Kind   feed.ErrorKind
}

func (SourceError) Notification() string { return NotificationNewsfeedError }
func (SourceError) event()               {}

type ImageReady struct {
	URL   string
	Image image.Artifact
}

func (ImageReady) Notification() string { return NotificationQRCodeImage }
func (ImageReady) event()               {}
