// Package webcam captures from USB webcams through pion/mediadevices. It is
// only built with the "webcam" build tag. Sources are named "webcam:" (all
// video inputs) or "webcam:<device id>". Frames are delivered as RGB8.
package webcam
