package multicam

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
)

// EnumerateWithRetry lists the devices named by specs, trying up to tries
// times, interval apart, until at least one device shows up. Devices are
// sorted by serial number. An unknown driver fails immediately.
func EnumerateWithRetry(ctx context.Context, specs []string, tries int, interval time.Duration) ([]camera.DeviceInfo, error) {
	if len(specs) == 0 {
		return nil, ErrNoSources
	}
	if tries <= 0 {
		tries = 1
	}

	for i := 1; ; i++ {
		infos, err := camera.Enumerate(specs)
		if err != nil {
			return nil, err
		}
		if len(infos) > 0 {
			sortBySerial(infos)
			for _, info := range infos {
				log.Info("Found %v", info)
			}
			return infos, nil
		}
		if i >= tries {
			break
		}

		log.Warn("Try %d of %d: waiting for %v for a device to be connected", i, tries, interval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, errors.Wrapf(camera.ErrDeviceUnavailable, "no device found in %v after %d tries", specs, tries)
}

func sortBySerial(infos []camera.DeviceInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Serial < infos[j].Serial
	})
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
