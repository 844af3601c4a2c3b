package v4l2

import (
	"path/filepath"
	"sort"

	"github.com/lanikai/multicam/internal/camera"
)

func init() {
	camera.RegisterDriver("v4l2", &Driver{})
}

type Driver struct{}

func (d *Driver) Enumerate(path string) ([]camera.DeviceInfo, error) {
	paths := []string{path}
	if path == "" {
		paths, _ = filepath.Glob("/dev/video*")
		sort.Strings(paths)
	}

	var infos []camera.DeviceInfo
	for _, p := range paths {
		info, err := probe(p)
		if err != nil {
			if path != "" {
				return nil, err
			}
			log.Debug("Skipping %s: %v", p, err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Driver) Open(info camera.DeviceInfo) (camera.Source, error) {
	return open(info)
}
