// Package docs analyzes turn attachments so later stages (response
// generation, journeys, action resolution) can use their content without
// re-reading blobs.
package docs

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strconv"

	_ "image/jpeg"
	_ "image/png"

	"github.com/ledongthuc/pdf"
)

// excerptLimit caps how much extracted text is kept in the analysis record.
const excerptLimit = 2000

// Analyze inspects attachment bytes and returns free-form key/value results.
// Analysis is best effort: an unreadable file returns an error and the caller
// proceeds without analysis rather than failing the turn.
func Analyze(data []byte, contentType string) (map[string]string, error) {
	switch contentType {
	case "application/pdf":
		return analyzePDF(data)
	case "image/jpeg", "image/png":
		return analyzeImage(data)
	default:
		// webp and friends: nothing useful to extract without extra decoders.
		return map[string]string{}, nil
	}
}

func analyzePDF(data []byte) (map[string]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	result := map[string]string{
		"pages": strconv.Itoa(reader.NumPage()),
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		// Scanned or image-only PDFs have no text layer; keep the page count.
		return result, nil
	}
	text, err := io.ReadAll(io.LimitReader(textReader, excerptLimit))
	if err != nil {
		return result, nil
	}
	if len(text) > 0 {
		result["text_excerpt"] = string(text)
	}
	return result, nil
}

func analyzeImage(data []byte) (map[string]string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return map[string]string{
		"format": format,
		"width":  strconv.Itoa(cfg.Width),
		"height": strconv.Itoa(cfg.Height),
	}, nil
}
