package sim

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

// Source is a synthetic camera.
type Source struct {
	info camera.DeviceInfo
	cfg  Config

	// Writable features and their current values.
	features map[string]string

	queue *camera.Queue
	loop  *media.Loop

	sync.Mutex
}

// New creates a synthetic camera.
func New(info camera.DeviceInfo, cfg Config) *Source {
	if info.Serial == "" {
		info.Serial = info.ID
	}
	if info.Model == "" {
		info.Model = Model
	}
	s := &Source{
		info: info,
		cfg:  cfg.withDefaults(),
	}
	s.resetFeatures()
	return s
}

func (s *Source) resetFeatures() {
	s.features = map[string]string{
		"AcquisitionMode":               "Continuous",
		"AcquisitionFrameRateEnable":    "false",
		"AcquisitionFrameRate":          camera.FormatNumber(float64(time.Second) / float64(s.cfg.Interval)),
		"BalanceWhiteEnable":            "false",
		"BalanceWhiteAuto":              "Off",
		"ExposureAuto":                  "Off",
		"ExposureTime":                  "10000",
		"GainAuto":                      "Off",
		"Gain":                          "0",
		"DeviceStreamChannelPacketSize": "1500",
		"StreamAutoNegotiatePacketSize": "false",
		"StreamPacketResendEnable":      "false",
		"Width":                         strconv.Itoa(s.cfg.Width),
		"Height":                        strconv.Itoa(s.cfg.Height),
		"PixelFormat":                   string(s.cfg.Format),
		"DeviceSerialNumber":            s.info.Serial,
		"DeviceModelName":               s.info.Model,
	}
}

var bounds = map[string][2]float64{
	"Width":                         {8, maxWidth},
	"Height":                        {8, maxHeight},
	"AcquisitionFrameRate":          {1, 60},
	"ExposureTime":                  {50, 1e6},
	"Gain":                          {0, 48},
	"DeviceStreamChannelPacketSize": {576, 9000},
}

var readOnly = map[string]bool{
	"DeviceSerialNumber": true,
	"DeviceModelName":    true,
}

func (s *Source) Info() camera.DeviceInfo {
	return s.info
}

// Feature returns the current value of a feature.
func (s *Source) Feature(name string) (string, bool) {
	s.Lock()
	defer s.Unlock()
	v, ok := s.features[name]
	return v, ok
}

func (s *Source) SetFeature(name, value string) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.features[name]; !ok {
		return camera.ErrUnknownFeature
	}
	if readOnly[name] || s.cfg.Reject[name] {
		return camera.ErrReadOnly
	}
	if s.queue != nil && (name == "Width" || name == "Height" || name == "PixelFormat") {
		return errors.Wrap(camera.ErrReadOnly, "locked while streaming")
	}

	if b, ok := bounds[name]; ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "sim: %s", name)
		}
		if v < b[0] || v > b[1] {
			return camera.ErrOutOfRange
		}
	}

	switch name {
	case "Width":
		s.cfg.Width, _ = strconv.Atoi(value)
	case "Height":
		s.cfg.Height, _ = strconv.Atoi(value)
	case "PixelFormat":
		f := media.PixelFormat(value)
		if !f.Known() {
			return camera.ErrOutOfRange
		}
		s.cfg.Format = f
	case "AcquisitionFrameRate":
		fps, _ := strconv.ParseFloat(value, 64)
		s.cfg.Interval = time.Duration(float64(time.Second) / fps)
	case "AcquisitionMode":
		if !strings.EqualFold(value, "Continuous") && !strings.EqualFold(value, "SingleFrame") {
			return camera.ErrOutOfRange
		}
	}
	s.features[name] = value
	return nil
}

func (s *Source) Execute(name string) error {
	s.Lock()
	defer s.Unlock()

	switch name {
	case "UserSetLoad":
		s.resetFeatures()
		return nil
	}
	return camera.ErrUnknownFeature
}

func (s *Source) FeatureBounds(name string) (float64, float64, error) {
	b, ok := bounds[name]
	if !ok {
		return 0, 0, camera.ErrUnknownFeature
	}
	return b[0], b[1], nil
}

func (s *Source) Start(bufferCount int) error {
	s.Lock()
	defer s.Unlock()

	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	if s.queue != nil {
		return errors.New("sim: already streaming")
	}

	cfg := s.cfg
	s.queue = camera.NewQueue(bufferCount, cfg.Format.FrameSize(cfg.Width, cfg.Height))
	s.loop = media.NewLoop(s.produce(s.queue, cfg))
	s.loop.Start()
	log.Debug("%s streaming %dx%d %s with %d buffers", s.info.Serial, cfg.Width, cfg.Height, cfg.Format, bufferCount)
	return nil
}

func (s *Source) Next(timeout time.Duration) (*media.Buffer, error) {
	s.Lock()
	q := s.queue
	s.Unlock()

	if q == nil {
		return nil, camera.ErrNotStarted
	}
	return q.Next(timeout)
}

func (s *Source) Stop() error {
	s.Lock()
	q, loop := s.queue, s.loop
	s.queue, s.loop = nil, nil
	s.Unlock()

	if q == nil {
		return nil
	}
	loop.Stop()
	q.Close()
	return nil
}

func (s *Source) Close() error {
	return s.Stop()
}

// Dropped counts frames lost because every buffer was in flight.
func (s *Source) Dropped() uint64 {
	s.Lock()
	defer s.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Dropped()
}

func (s *Source) produce(q *camera.Queue, cfg Config) media.LoopFunc {
	return func(quit <-chan struct{}) error {
		var ticker *time.Ticker
		var tick <-chan time.Time
		if cfg.Gate == nil {
			ticker = time.NewTicker(cfg.Interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		size := cfg.Format.FrameSize(cfg.Width, cfg.Height)
		var frameID uint64
		for {
			select {
			case <-quit:
				return nil
			case <-tick:
			case <-cfg.Gate:
			}

			if len(cfg.Script) > 0 && int(frameID) >= len(cfg.Script) {
				// Script exhausted: stay quiet until stopped.
				<-quit
				return nil
			}

			frameID++
			id := frameID
			q.Deliver(func(buf *media.Buffer) error {
				if len(cfg.Script) > 0 {
					if err := buf.Fill(cfg.Script[id-1]); err != nil {
						return err
					}
				} else {
					pattern(buf.Data()[:size], id)
					buf.SetLen(size)
				}
				buf.Width = cfg.Width
				buf.Height = cfg.Height
				buf.Format = cfg.Format
				buf.FrameID = id
				buf.Timestamp = time.Now()
				if cfg.Chunks {
					buf.Chunks = map[string]float64{
						"ChunkFrameCounter": float64(id),
						"ChunkExposureTime": 10000,
						"ChunkGain":         0,
					}
				}
				return nil
			})

			if cfg.DisconnectAfter > 0 && int(id) >= cfg.DisconnectAfter {
				log.Info("%s: simulated disconnect after %d frames", s.info.Serial, id)
				q.Fail(camera.ErrDisconnected)
				<-quit
				return nil
			}
		}
	}
}

// A diagonal gradient that shifts by one step per frame.
func pattern(p []byte, frameID uint64) {
	for i := range p {
		p[i] = byte(uint64(i) + frameID)
	}
}
