//go:build aravis
// +build aravis

package aravis

// #cgo pkg-config: aravis-0.8
// #include <arv.h>
// #include <stdlib.h>
//
// static ArvGcFeatureNode *feature_node(ArvGcNode *node) {
//	return ARV_IS_GC_FEATURE_NODE(node) ? ARV_GC_FEATURE_NODE(node) : NULL;
// }
import "C"

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("aravis")

// Aravis keeps a global device list; guard its refresh and indexed reads.
var listMu sync.Mutex

func init() {
	camera.RegisterDriver("aravis", &Driver{})
}

// Chunks read from each buffer when the camera sends chunk data.
var chunkNames = []string{"ChunkExposureTime", "ChunkGain"}

func gerror(err *C.GError) error {
	if err == nil {
		return nil
	}
	defer C.g_clear_error(&err)
	return errors.New("aravis: " + C.GoString(err.message))
}

type Driver struct{}

func (d *Driver) Enumerate(path string) ([]camera.DeviceInfo, error) {
	listMu.Lock()
	defer listMu.Unlock()

	C.arv_update_device_list()
	n := uint(C.arv_get_n_devices())

	var infos []camera.DeviceInfo
	for i := uint(0); i < n; i++ {
		idx := C.uint(i)
		info := camera.DeviceInfo{
			ID:      C.GoString(C.arv_get_device_id(idx)),
			Serial:  C.GoString(C.arv_get_device_serial_nbr(idx)),
			Model:   C.GoString(C.arv_get_device_model(idx)),
			Vendor:  C.GoString(C.arv_get_device_vendor(idx)),
			Address: C.GoString(C.arv_get_device_address(idx)),
		}
		if path != "" && path != info.ID && path != info.Serial {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Driver) Open(info camera.DeviceInfo) (camera.Source, error) {
	name := C.CString(info.ID)
	defer C.free(unsafe.Pointer(name))

	var gerr *C.GError
	cam := C.arv_camera_new(name, &gerr)
	if err := gerror(gerr); err != nil {
		return nil, err
	}
	return &Source{info: info, cam: cam, dev: C.arv_camera_get_device(cam)}, nil
}

// Source is an opened Aravis camera.
type Source struct {
	info camera.DeviceInfo

	cam *C.ArvCamera
	dev *C.ArvDevice

	stream *C.ArvStream
	chunks *C.ArvChunkParser
	pool   *media.Pool

	sync.Mutex
}

func (s *Source) Info() camera.DeviceInfo {
	return s.info
}

func (s *Source) SetFeature(name, value string) error {
	s.Lock()
	defer s.Unlock()

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	node := C.feature_node(C.arv_device_get_feature(s.dev, cname))
	if node == nil {
		return camera.ErrUnknownFeature
	}

	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cvalue))
	var gerr *C.GError
	C.arv_gc_feature_node_set_value_from_string(node, cvalue, &gerr)
	return gerror(gerr)
}

func (s *Source) Execute(name string) error {
	s.Lock()
	defer s.Unlock()

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var gerr *C.GError
	C.arv_device_execute_command(s.dev, cname, &gerr)
	return gerror(gerr)
}

func (s *Source) FeatureBounds(name string) (float64, float64, error) {
	s.Lock()
	defer s.Unlock()

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var imin, imax C.gint64
	var gerr *C.GError
	C.arv_device_get_integer_feature_bounds(s.dev, cname, &imin, &imax, &gerr)
	if gerr == nil {
		return float64(imin), float64(imax), nil
	}
	C.g_clear_error(&gerr)

	var fmin, fmax C.double
	C.arv_device_get_float_feature_bounds(s.dev, cname, &fmin, &fmax, &gerr)
	if err := gerror(gerr); err != nil {
		return 0, 0, errors.Wrapf(camera.ErrUnknownFeature, "%s: %v", name, err)
	}
	return float64(fmin), float64(fmax), nil
}

func (s *Source) pixelFormat() (media.PixelFormat, error) {
	var gerr *C.GError
	f := C.arv_camera_get_pixel_format_as_string(s.cam, &gerr)
	if err := gerror(gerr); err != nil {
		return "", err
	}
	return media.PixelFormat(C.GoString(f)), nil
}

func (s *Source) Start(bufferCount int) error {
	s.Lock()
	defer s.Unlock()

	if s.stream != nil {
		return errors.New("aravis: already streaming")
	}

	var gerr *C.GError
	payload := C.arv_camera_get_payload(s.cam, &gerr)
	if err := gerror(gerr); err != nil {
		return err
	}
	stream := C.arv_camera_create_stream(s.cam, nil, nil, &gerr)
	if err := gerror(gerr); err != nil {
		return errors.Wrap(camera.ErrDeviceUnavailable, err.Error())
	}
	for i := 0; i < bufferCount; i++ {
		C.arv_stream_push_buffer(stream, C.arv_buffer_new(C.size_t(payload), nil))
	}

	C.arv_camera_start_acquisition(s.cam, &gerr)
	if err := gerror(gerr); err != nil {
		C.g_object_unref(C.gpointer(unsafe.Pointer(stream)))
		return err
	}

	s.stream = stream
	s.chunks = C.arv_camera_create_chunk_parser(s.cam)
	s.pool = media.NewPool(bufferCount, int(payload))
	log.Debug("%s streaming, %d buffers of %d bytes", s.info.Serial, bufferCount, payload)
	return nil
}

func (s *Source) Next(timeout time.Duration) (*media.Buffer, error) {
	s.Lock()
	defer s.Unlock()

	if s.stream == nil {
		return nil, camera.ErrNotStarted
	}

	abuf := C.arv_stream_timeout_pop_buffer(s.stream, C.guint64(timeout/time.Microsecond))
	if abuf == nil {
		return nil, camera.ErrAcquisitionTimeout
	}
	// Hand the buffer back to the stream once copied.
	defer C.arv_stream_push_buffer(s.stream, abuf)

	if status := C.arv_buffer_get_status(abuf); status != C.ARV_BUFFER_STATUS_SUCCESS {
		if status == C.ARV_BUFFER_STATUS_TIMEOUT || status == C.ARV_BUFFER_STATUS_MISSING_PACKETS {
			return nil, camera.ErrAcquisitionTimeout
		}
		return nil, errors.Errorf("aravis: buffer status %d", int(status))
	}

	buf := s.pool.TryAcquire()
	if buf == nil {
		return nil, camera.ErrAcquisitionTimeout
	}

	var size C.size_t
	data := C.arv_buffer_get_data(abuf, &size)
	if err := buf.Fill(C.GoBytes(data, C.int(size))); err != nil {
		buf.Release()
		return nil, err
	}
	format, err := s.pixelFormat()
	if err != nil {
		buf.Release()
		return nil, err
	}
	buf.Width = int(C.arv_buffer_get_image_width(abuf))
	buf.Height = int(C.arv_buffer_get_image_height(abuf))
	buf.Format = format
	buf.FrameID = uint64(C.arv_buffer_get_frame_id(abuf))
	buf.Timestamp = time.Unix(0, int64(C.arv_buffer_get_system_timestamp(abuf)))

	if C.arv_buffer_has_chunks(abuf) != 0 && s.chunks != nil {
		buf.Chunks = make(map[string]float64)
		for _, name := range chunkNames {
			cname := C.CString(name)
			var gerr *C.GError
			v := C.arv_chunk_parser_get_float_value(s.chunks, abuf, cname, &gerr)
			C.free(unsafe.Pointer(cname))
			if gerr != nil {
				C.g_clear_error(&gerr)
				continue
			}
			buf.Chunks[name] = float64(v)
		}
	}
	return buf, nil
}

func (s *Source) Stop() error {
	s.Lock()
	defer s.Unlock()

	if s.stream == nil {
		return nil
	}
	var gerr *C.GError
	C.arv_camera_stop_acquisition(s.cam, &gerr)
	err := gerror(gerr)
	if err != nil {
		log.Warn("%s: stop acquisition: %v", s.info.Serial, err)
	}

	C.g_object_unref(C.gpointer(unsafe.Pointer(s.stream)))
	if s.chunks != nil {
		C.g_object_unref(C.gpointer(unsafe.Pointer(s.chunks)))
	}
	s.stream, s.chunks = nil, nil
	s.pool.Close()
	s.pool = nil
	return err
}

func (s *Source) Close() error {
	err := s.Stop()
	s.Lock()
	defer s.Unlock()
	if s.cam != nil {
		C.g_object_unref(C.gpointer(unsafe.Pointer(s.cam)))
		s.cam, s.dev = nil, nil
	}
	return err
}
