package camera

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// A Driver enumerates and opens devices of one kind.
type Driver interface {
	// Enumerate lists the devices reachable through path. The meaning of
	// path is driver specific (a device node, a multicast group, a count).
	Enumerate(path string) ([]DeviceInfo, error)

	Open(info DeviceInfo) (Source, error)
}

var (
	registry   = map[string]Driver{}
	registryMu sync.RWMutex
)

// Register a driver, identified by its tag. Sources of this kind are named
// by specs of the form "tag:path".
func RegisterDriver(tag string, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = d
}

// Drivers returns the registered driver tags, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var tags []string
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func lookup(tag string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, found := registry[tag]
	if !found {
		return nil, errors.Errorf("camera: driver '%s' not registered (have %v)", tag, Drivers())
	}
	return d, nil
}

// SplitSpec splits a source spec into driver tag and path:
//    spec = tag + ":" + path
func SplitSpec(spec string) (tag, path string) {
	parts := strings.SplitN(spec, ":", 2)
	tag = parts[0]
	if len(parts) == 2 {
		path = parts[1]
	}
	return
}

// Enumerate lists the devices named by each spec. Devices are returned in
// spec order; a spec that yields no devices is not an error, an unknown
// driver tag is.
func Enumerate(specs []string) ([]DeviceInfo, error) {
	var all []DeviceInfo
	for _, spec := range specs {
		tag, path := SplitSpec(spec)
		d, err := lookup(tag)
		if err != nil {
			return nil, err
		}
		infos, err := d.Enumerate(path)
		if err != nil {
			log.Warn("Enumerating %s: %v", spec, err)
			continue
		}
		for i := range infos {
			infos[i].Driver = tag
		}
		all = append(all, infos...)
	}
	return all, nil
}

// Open opens an enumerated device with the driver that found it.
func Open(info DeviceInfo) (Source, error) {
	d, err := lookup(info.Driver)
	if err != nil {
		return nil, err
	}
	src, err := d.Open(info)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%v: %v", info, err)
	}
	return src, nil
}
