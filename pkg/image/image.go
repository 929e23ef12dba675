package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Artifact is an opaque reference to a generated image. The QR generator produces data URIs which can be used as
// image sources as is.
type Artifact string

type Generator interface {
	Generate(ctx context.Context, url string) (Artifact, error)
}

const DefaultQRSize = 128

type QRGenerator struct {
	size int
}

var _ Generator = &QRGenerator{}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = DefaultQRSize
	}
	return &QRGenerator{size: size}
}

func (g *QRGenerator) Generate(ctx context.Context, url string) (Artifact, error) {
	if url == "" {
		return "", errors.New("unable to generate QR code: the URL is empty")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := g.PNG(url)
	if err != nil {
		return "", err
	}

	return DataURI("image/png", data), nil
}

func (g *QRGenerator) PNG(url string) ([]byte, error) {
	data, err := qrcode.Encode(url, qrcode.Medium, g.size)
	if err != nil {
		return nil, fmt.Errorf("unable to generate QR code for %q: %w", url, err)
	}
	return data, nil
}

func DataURI(mediaType string, data []byte) Artifact {
	return Artifact(fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)))
}
