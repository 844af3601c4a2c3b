//go:build !linux
// +build !linux

package v4l2

import (
	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
)

var errUnsupported = errors.New("v4l2: only supported on Linux")

func probe(path string) (camera.DeviceInfo, error) {
	return camera.DeviceInfo{}, errUnsupported
}

func open(info camera.DeviceInfo) (camera.Source, error) {
	return nil, errUnsupported
}
