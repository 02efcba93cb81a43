// Package ocr wraps the external text-recognition service. The engine is
// an expensive resource (model load happens on first use), so exactly one
// instance is constructed per process and shared by every adapter.
package ocr

import "context"

// Engine converts an image into the concatenation of its recognized text
// fragments, in the engine's reading order. An empty string with a nil
// error means the image carried no recognizable text.
type Engine interface {
	ExtractURL(ctx context.Context, url string) (string, error)
	ExtractBytes(ctx context.Context, image []byte) (string, error)
}
