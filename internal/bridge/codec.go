package bridge

import (
	"errors"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/samber/mo"

	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

var ErrUnknownNotification = errors.New("unknown notification")

const maxReloadInterval = math.MaxInt64 / int64(time.Millisecond)

type envelope struct {
	Notification string          `json:"notification"`
	Payload      json.RawMessage `json:"payload"`
}

type sourceErrorPayload struct {
	ErrorType feed.ErrorKind `json:"error_type"`
	Source    source.Key     `json:"source,omitempty"`
}

type imageReadyPayload struct {
	URL      string         `json:"url"`
	ImageURL image.Artifact `json:"imageUrl"`
}

// feedPayload describes a source the way consumers configure it: intervals are in milliseconds.
type feedPayload struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Encoding       string `json:"encoding"`
	ReloadInterval int64  `json:"reloadInterval"`
	UseCorsProxy   *bool  `json:"useCorsProxy"`
}

type configPayload struct {
	ReloadInterval  int64 `json:"reloadInterval"`
	LogFeedWarnings bool  `json:"logFeedWarnings"`
}

type addFeedPayload struct {
	Feed   *feedPayload   `json:"feed"`
	Config *configPayload `json:"config"`
}

// Encode serializes the event into a notification envelope.
func Encode(event Event) ([]byte, error) {
	var payload any

	switch event := event.(type) {
	case ItemsSnapshot:
		feeds := event.Feeds
		if feeds == nil {
			feeds = feed.Snapshot{}
		}
		payload = feeds
	case SourceError:
		payload = sourceErrorPayload{ErrorType: event.Kind, Source: event.Source}
	case ImageReady:
		payload = imageReadyPayload{URL: event.URL, ImageURL: event.Image}
	default:
		return nil, fmt.Errorf("unsupported event: %T", event)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event.Notification(), err)
	}

	return json.Marshal(envelope{
		Notification: event.Notification(),
		Payload:      data,
	})
}

// DecodeCommand parses a notification envelope sent by consumer.
func DecodeCommand(data []byte) (Command, error) {
	var message envelope
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("invalid notification: %w", err)
	}

	if len(message.Payload) == 0 || string(message.Payload) == "null" {
		return nil, fmt.Errorf("%s notification has no payload", message.Notification)
	}

	switch message.Notification {
	case NotificationAddFeed:
		descriptor, err := decodeDescriptor(message.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", message.Notification, err)
		}
		return RegisterSource{Descriptor: descriptor}, nil

	case NotificationRequestQRCode, notificationGenerateQRCode:
		var url string
		if err := json.Unmarshal(message.Payload, &url); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", message.Notification, err)
		}
		return RequestImage{URL: url}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNotification, message.Notification)
	}
}

// decodeDescriptor accepts both the {"feed": ..., "config": ...} form and a bare feed object.
func decodeDescriptor(data []byte) (source.Descriptor, error) {
	var payload addFeedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return source.Descriptor{}, err
	}

	if payload.Feed == nil {
		payload.Feed = &feedPayload{}
		if err := json.Unmarshal(data, payload.Feed); err != nil {
			return source.Descriptor{}, err
		}
	}

	config := payload.Config
	if config == nil {
		config = &configPayload{}
	}

	reloadInterval := payload.Feed.ReloadInterval
	if reloadInterval <= 0 {
		reloadInterval = config.ReloadInterval
	}
	if reloadInterval > maxReloadInterval {
		return source.Descriptor{}, fmt.Errorf("reload interval is too large: %dms", reloadInterval)
	}

	descriptor := source.Descriptor{
		Address:        payload.Feed.URL,
		Title:          payload.Feed.Title,
		Encoding:       payload.Feed.Encoding,
		ReloadInterval: time.Duration(max(reloadInterval, 0)) * time.Millisecond,
		LogWarnings:    config.LogFeedWarnings,
	}
	if payload.Feed.UseCorsProxy != nil {
		descriptor.UseProxy = mo.Some(*payload.Feed.UseCorsProxy)
	}

	return descriptor, nil
}
