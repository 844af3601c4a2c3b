//////////////////////////////////////////////////////////////////////////////
//
// Pipeline runs one acquisition worker per source and serves composites and
// saves of their latest frames.
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package multicam

import (
	"context"
	"image"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/compositor"
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
	"github.com/lanikai/multicam/internal/multicast"
	"github.com/lanikai/multicam/internal/storage"
	"github.com/lanikai/multicam/internal/worker"
)

var log = logging.DefaultLogger.WithTag("multicam")

// CompositeTag names saved composites.
const CompositeTag = "composite"

var errStarted = errors.New("multicam: pipeline already started")

type Pipeline struct {
	cfg   Config
	runID uuid.UUID

	comp    *compositor.Compositor
	sink    *storage.Sink
	catalog *storage.Catalog
	relay   *multicast.Sender

	mu      sync.Mutex
	handles []*SourceHandle
	started bool
	events  chan Event

	saveMu sync.Mutex

	watchers     sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

// New prepares a pipeline. It opens the catalog and the relay, if
// configured, but no sources.
func New(cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:   cfg,
		runID: uuid.New(),
		comp: compositor.New(compositor.Options{
			Tile:    cfg.Tile,
			Columns: cfg.Columns,
			Border:  compositor.DefaultBorder,
			Labels:  cfg.Labels,
		}),
		sink: storage.NewSink(cfg.Format),
	}

	if cfg.Catalog != "" {
		c, err := storage.OpenCatalog(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		p.catalog = c
	}
	if cfg.Relay != "" {
		s, err := multicast.NewSender(cfg.Relay, 1)
		if err != nil {
			if p.catalog != nil {
				p.catalog.Close()
			}
			return nil, err
		}
		p.relay = s
		log.Info("Relaying frames to %s", cfg.Relay)
	}
	return p, nil
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// RunID identifies this pipeline in logs.
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// Open enumerates the configured sources, retrying as configured, and opens
// every device found. Devices that fail to open are logged and skipped.
func (p *Pipeline) Open(ctx context.Context) error {
	infos, err := EnumerateWithRetry(ctx, p.cfg.Sources, p.cfg.Tries, p.cfg.RetryInterval)
	if err != nil {
		return err
	}

	opened := 0
	for _, info := range infos {
		src, err := camera.Open(info)
		if err != nil {
			log.Error("%v", err)
			continue
		}
		if _, err := p.Add(src); err != nil {
			src.Close()
			return err
		}
		opened++
	}
	if opened == 0 {
		return errors.Wrapf(ErrNoSources, "none of %d devices could be opened", len(infos))
	}
	return nil
}

// Add takes ownership of an opened source. Sources must be added before
// Start.
func (p *Pipeline) Add(src camera.Source) (*SourceHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil, errStarted
	}

	info := src.Info()
	h := &SourceHandle{
		Info:   info,
		Source: src,
		Slot:   &media.Slot{},
	}

	cfg := worker.Config{
		Buffers:     p.cfg.Buffers,
		Timeout:     p.cfg.Timeout,
		MaxTimeouts: p.cfg.MaxTimeouts,
	}
	if p.relay != nil && info.Access != camera.ReadOnly {
		relay := p.relay
		cfg.OnBuffer = func(buf *media.Buffer) {
			if err := relay.Send(info, buf); err != nil {
				log.Debug("%s: relay: %v", info.Serial, err)
			}
		}
	}
	h.Worker = worker.New(src, h.Slot, cfg)

	p.handles = append(p.handles, h)
	sort.SliceStable(p.handles, func(i, j int) bool {
		return p.handles[i].Info.Serial < p.handles[j].Info.Serial
	})
	return h, nil
}

// Handles returns the sources, sorted by serial number.
func (p *Pipeline) Handles() []*SourceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SourceHandle(nil), p.handles...)
}

// Start configures every source and starts its worker, in parallel. It
// returns once each worker is streaming or has failed. Failed sources are
// reported with a *StartError while the others keep streaming; if no source
// started the error is ErrAllSourcesLost.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errStarted
	}
	p.started = true
	handles := p.handles
	p.events = make(chan Event, len(handles))
	p.mu.Unlock()

	if len(handles) == 0 {
		return ErrNoSources
	}
	log.Info("Run %s: starting %d sources", p.runID, len(handles))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h *SourceHandle) {
			defer wg.Done()
			if err := p.start(h); err != nil {
				mu.Lock()
				failed[h.Name()] = err
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	if len(failed) == 0 {
		log.Info("Streaming from %s", compositor.Title(p.names()))
		return nil
	}
	serr := &StartError{Failed: failed}
	if len(failed) == len(handles) {
		return errors.Wrap(ErrAllSourcesLost, serr.Error())
	}
	return serr
}

func (p *Pipeline) start(h *SourceHandle) error {
	if err := camera.Configure(h.Source, p.cfg.Features); err != nil {
		log.Error("%s: %v", h.Name(), err)
		h.err = err
		h.setStatus(Disconnected)
		return err
	}
	if err := h.Worker.Start(); err != nil {
		h.err = err
		h.setStatus(Disconnected)
		return err
	}
	h.setStatus(Streaming)

	p.watchers.Add(1)
	go p.watch(h)
	return nil
}

// watch reports a worker that stops without being asked to.
func (p *Pipeline) watch(h *SourceHandle) {
	defer p.watchers.Done()
	<-h.Worker.Done()
	if !h.transition(Streaming, Disconnected) {
		return
	}
	err := h.Worker.Err()
	if err == nil {
		err = camera.ErrDisconnected
	}
	log.Warn("%s: source lost: %v", h.Name(), err)
	p.events <- Event{Handle: h, Err: err}
}

// Events delivers one Event per source lost while streaming. It is valid
// after Start.
func (p *Pipeline) Events() <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Streaming counts sources whose worker is running.
func (p *Pipeline) Streaming() int {
	n := 0
	for _, h := range p.Handles() {
		if h.Status() == Streaming {
			n++
		}
	}
	return n
}

func (p *Pipeline) names() []string {
	handles := p.Handles()
	names := make([]string, len(handles))
	for i, h := range handles {
		names[i] = h.Name()
	}
	return names
}

// Title names the composite, e.g. for a window.
func (p *Pipeline) Title() string {
	return compositor.Title(p.names())
}

// Snapshot composes the latest frame of every source. It never blocks on a
// worker; sources without a frame get a placeholder.
func (p *Pipeline) Snapshot() *image.RGBA {
	handles := p.Handles()
	inputs := make([]compositor.Input, len(handles))
	for i, h := range handles {
		inputs[i] = compositor.Input{Serial: h.Info.Serial, Slot: h.Slot}
	}
	return p.comp.Compose(inputs)
}

// Save writes the latest FrameSet of every source under
// Output/{Model}-{Serial}, and the composite of those same sets under Output
// if configured. It returns the written paths. A filesystem failure of one
// source does not prevent saving the others; the first failure is returned.
func (p *Pipeline) Save() ([]string, error) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	batch := uuid.New()
	at := time.Now()
	handles := p.Handles()

	serials := make([]string, len(handles))
	sets := make([]*media.FrameSet, len(handles))
	for i, h := range handles {
		serials[i] = h.Info.Serial
		sets[i] = h.Slot.Load()
	}

	var (
		paths    []string
		firstErr error
	)
	record := func(set *media.FrameSet, saved []storage.Saved, err error, what string) {
		paths = append(paths, storage.Paths(saved)...)
		if err != nil {
			log.Error("[%s] %s: %v", batch, what, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if p.catalog != nil {
			if err := p.catalog.Record(batch, set, saved, at); err != nil {
				log.Warn("[%s] %s: %v", batch, what, err)
			}
		}
	}

	for i, h := range handles {
		set := sets[i]
		if set == nil {
			log.Warn("[%s] %s: no frame to save yet", batch, h.Name())
			continue
		}
		saved, err := p.sink.Save(set, filepath.Join(p.cfg.Output, h.Name()))
		record(set, saved, err, h.Name())
	}

	if p.cfg.SaveComposite {
		img := p.comp.ComposeSets(serials, sets)
		saved, err := p.sink.SaveImage(img, CompositeTag, p.cfg.Output)
		var files []storage.Saved
		if err == nil {
			files = []storage.Saved{saved}
		}
		record(&media.FrameSet{Source: CompositeTag, Timestamp: at}, files, err, CompositeTag)
	}

	log.Info("[%s] Saved %d files", batch, len(paths))
	return paths, firstErr
}

// Catalog returns the save catalog, or nil if none is configured.
func (p *Pipeline) Catalog() *storage.Catalog {
	return p.catalog
}

// Shutdown stops every worker, waits for them, and closes all sources. It
// is idempotent.
func (p *Pipeline) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.shutdown()
	})
	return p.shutdownErr
}

func (p *Pipeline) shutdown() error {
	handles := p.Handles()
	log.Info("Run %s: shutting down %d sources", p.runID, len(handles))

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *SourceHandle) {
			defer wg.Done()
			lost := !h.transition(Streaming, Stopping)
			if err := h.Worker.Stop(); err != nil && !lost {
				log.Warn("%s: %v", h.Name(), err)
			}
			if err := h.Source.Close(); err != nil {
				log.Warn("%s: close: %v", h.Name(), err)
			}
			if !lost {
				h.setStatus(Stopped)
			}
			st := h.Worker.Stats()
			log.Info("%s: %d frames, %d timeouts, %d decode errors, %d dropped",
				h.Name(), st.Frames, st.Timeouts, st.DecodeErrors, st.Dropped)
		}(h)
	}
	wg.Wait()
	p.watchers.Wait()

	var err error
	if p.relay != nil {
		err = p.relay.Close()
	}
	if p.catalog != nil {
		if cerr := p.catalog.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
