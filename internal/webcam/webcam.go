//go:build webcam
// +build webcam

package webcam

import (
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("webcam")

const (
	defaultWidth  = 640
	defaultHeight = 480
)

func init() {
	camera.RegisterDriver("webcam", &Driver{})
}

type Driver struct{}

func (d *Driver) Enumerate(path string) ([]camera.DeviceInfo, error) {
	var infos []camera.DeviceInfo
	for _, dev := range mediadevices.EnumerateDevices() {
		if dev.Kind != mediadevices.VideoInput {
			continue
		}
		if path != "" && path != dev.DeviceID {
			continue
		}
		infos = append(infos, camera.DeviceInfo{
			ID:     dev.DeviceID,
			Serial: dev.DeviceID,
			Model:  dev.Label,
		})
	}
	return infos, nil
}

func (d *Driver) Open(info camera.DeviceInfo) (camera.Source, error) {
	return &Source{info: info, width: defaultWidth, height: defaultHeight}, nil
}

// Source is a webcam. Geometry and frame rate are requested when the stream
// starts.
type Source struct {
	info camera.DeviceInfo

	width, height int
	fps           float64

	track *mediadevices.VideoTrack
	queue *camera.Queue
	loop  *media.Loop

	sync.Mutex
}

func (s *Source) Info() camera.DeviceInfo {
	return s.info
}

func (s *Source) SetFeature(name, value string) error {
	s.Lock()
	defer s.Unlock()

	if s.track != nil {
		return errors.Wrap(camera.ErrReadOnly, "locked while streaming")
	}
	switch name {
	case "Width", "Height", "AcquisitionFrameRate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v <= 0 {
			return errors.Wrapf(camera.ErrOutOfRange, "%s=%q", name, value)
		}
		switch name {
		case "Width":
			s.width = int(v)
		case "Height":
			s.height = int(v)
		default:
			s.fps = v
		}
		return nil
	case "PixelFormat":
		if media.PixelFormat(value) != media.RGB8 {
			return camera.ErrOutOfRange
		}
		return nil
	case "AcquisitionMode":
		return nil
	}
	return camera.ErrUnknownFeature
}

func (s *Source) Execute(name string) error {
	return camera.ErrUnknownFeature
}

func (s *Source) FeatureBounds(name string) (float64, float64, error) {
	switch name {
	case "Width":
		return 160, 1920, nil
	case "Height":
		return 120, 1080, nil
	case "AcquisitionFrameRate":
		return 1, 60, nil
	}
	return 0, 0, camera.ErrUnknownFeature
}

func (s *Source) Start(bufferCount int) error {
	s.Lock()
	defer s.Unlock()

	if s.track != nil {
		return errors.New("webcam: already streaming")
	}

	width, height, fps := s.width, s.height, s.fps
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.DeviceID = prop.String(s.info.ID)
			c.Width = prop.Int(width)
			c.Height = prop.Int(height)
			if fps > 0 {
				c.FrameRate = prop.Float(fps)
			}
		},
	})
	if err != nil {
		return errors.Wrap(camera.ErrDeviceUnavailable, err.Error())
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return errors.Wrap(camera.ErrDeviceUnavailable, "webcam: no video track")
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return errors.Wrap(camera.ErrDeviceUnavailable, "webcam: not a video track")
	}

	s.track = track
	s.queue = camera.NewQueue(bufferCount, media.RGB8.FrameSize(width, height))
	s.loop = media.NewLoop(s.readLoop(track, s.queue))
	s.loop.Start()
	return nil
}

func (s *Source) readLoop(track *mediadevices.VideoTrack, q *camera.Queue) media.LoopFunc {
	return func(quit <-chan struct{}) error {
		reader := track.NewReader(false)
		var frameID uint64
		var rgba *image.RGBA
		for {
			select {
			case <-quit:
				return nil
			default:
			}

			img, release, err := reader.Read()
			if err != nil {
				q.Fail(errors.Wrap(camera.ErrDisconnected, err.Error()))
				return err
			}
			b := img.Bounds()
			if rgba == nil || rgba.Bounds() != b {
				rgba = image.NewRGBA(b)
			}
			draw.Draw(rgba, b, img, b.Min, draw.Src)
			release()

			frameID++
			id := frameID
			q.Deliver(func(buf *media.Buffer) error {
				n := media.RGB8.FrameSize(b.Dx(), b.Dy())
				if n > buf.Cap() {
					return media.ErrBufferTooBig
				}
				packRGB(buf.Data()[:n], rgba.Pix)
				buf.SetLen(n)
				buf.Width = b.Dx()
				buf.Height = b.Dy()
				buf.Format = media.RGB8
				buf.FrameID = id
				buf.Timestamp = time.Now()
				return nil
			})
		}
	}
}

// Drops the alpha channel.
func packRGB(dst, rgba []byte) {
	for i, j := 0, 0; j+2 < len(dst) && i+3 < len(rgba); i, j = i+4, j+3 {
		dst[j], dst[j+1], dst[j+2] = rgba[i], rgba[i+1], rgba[i+2]
	}
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
	track, q, loop := s.track, s.queue, s.loop
	s.track, s.queue, s.loop = nil, nil, nil
	s.Unlock()

	if track == nil {
		return nil
	}
	// Closing the track unblocks a pending read.
	err := track.Close()
	loop.Stop()
	q.Close()
	log.Debug("%s stopped", s.info.ID)
	return err
}

func (s *Source) Close() error {
	return s.Stop()
}

func (s *Source) Dropped() uint64 {
	s.Lock()
	defer s.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Dropped()
}
