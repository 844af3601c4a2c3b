package camera

import (
	"time"

	"github.com/lanikai/multicam/internal/media"
)

// WithStream starts src, runs body, and stops src on every exit path of
// body, including panics.
func WithStream(src Source, bufferCount int, body func(Source) error) (err error) {
	if err := src.Start(bufferCount); err != nil {
		return err
	}
	defer func() {
		if serr := src.Stop(); serr != nil && err == nil {
			err = serr
		}
	}()
	return body(src)
}

// Consume pulls one buffer from src and lends it to fn. The buffer goes
// back to the device when fn returns, whatever the outcome, so callers never
// release buffers themselves.
func Consume(src Source, timeout time.Duration, fn func(*media.Buffer) error) error {
	buf, err := src.Next(timeout)
	if err != nil {
		return err
	}
	defer buf.Release()
	return fn(buf)
}
