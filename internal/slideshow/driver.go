package slideshow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/i474232898/weather-slideshow/internal/images"
	"github.com/i474232898/weather-slideshow/internal/radar"
)

// ErrStopped is returned by driver calls once Run has returned.
var ErrStopped = errors.New("slideshow: driver stopped")

// errNoRadarData is the placeholder text when no capture exists yet.
const errNoRadarData = "No radar data available"

// ImageLister supplies the current image set, newest first.
type ImageLister interface {
	List() ([]images.Image, error)
}

// RadarSource supplies the newest radar capture.
type RadarSource interface {
	Latest() (radar.Ref, bool)
}

// RadarPanel is what the display shows on a radar slide.
type RadarPanel struct {
	URL       string         `json:"url,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Location  string         `json:"location,omitempty"`
	Token     uint64         `json:"token"`
	State     RadarLoadState `json:"state"`
	Error     string         `json:"error,omitempty"`
}

// Frame is one published render: the decision plus the renderer hints.
type Frame struct {
	Decision
	Fit   FitMode     `json:"fit,omitempty"`
	Radar *RadarPanel `json:"radar,omitempty"`
	Seq   uint64      `json:"seq"`
}

type DriverConfig struct {
	Sequencer    SequencerConfig
	Gesture      GestureConfig
	RadarTimeout time.Duration
	ImagePoll    time.Duration
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Sequencer:    DefaultSequencerConfig(),
		Gesture:      DefaultGestureConfig(),
		RadarTimeout: DefaultRadarTimeout,
		ImagePoll:    30 * time.Second,
	}
}

type op int

const (
	opNext op = iota
	opPrevious
	opToggle
	opGesture
	opViewport
	opRadarLoaded
	opRadarFailed
	opRefresh
)

type intent struct {
	op      op
	gesture Gesture
	width   float64
	height  float64
	token   uint64
	reason  string
	reply   chan result
}

type result struct {
	frame    Frame
	intent   Intent
	accepted bool
}

// Driver owns a Sequencer and a RadarWatch and is the only goroutine that
// touches them. Timers, navigation and collaborator refreshes are all
// serialized through Run.
type Driver struct {
	cfg    DriverConfig
	seq    *Sequencer
	watch  *RadarWatch
	images ImageLister
	radar  RadarSource
	bcast  *Broadcaster
	now    func() time.Time

	intents chan intent
	done    chan struct{}
	running *atomic.Bool

	// Owned by Run.
	ratios    map[ImageRef]float64
	viewport  float64
	radarRef  *radar.Ref
	radarBust int64

	mu    sync.RWMutex
	frame Frame
}

// NewDriver wires a driver. A nil radar source disables radar interleaving.
func NewDriver(cfg DriverConfig, imgs ImageLister, rdr RadarSource) *Driver {
	def := DefaultDriverConfig()
	if cfg.ImagePoll <= 0 {
		cfg.ImagePoll = def.ImagePoll
	}
	if cfg.Gesture == (GestureConfig{}) {
		cfg.Gesture = def.Gesture
	}
	if rdr == nil {
		cfg.Sequencer.RadarEnabled = false
	}

	return &Driver{
		cfg:     cfg,
		seq:     NewSequencer(cfg.Sequencer),
		watch:   NewRadarWatch(cfg.RadarTimeout),
		images:  imgs,
		radar:   rdr,
		bcast:   NewBroadcaster(),
		now:     time.Now,
		intents: make(chan intent),
		done:    make(chan struct{}),
		running: atomic.NewBool(false),
		ratios:  make(map[ImageRef]float64),
	}
}

// Run drives the slideshow until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CAS(false, true) {
		return errors.New("slideshow: driver already running")
	}
	defer func() {
		close(d.done)
		d.bcast.Close()
	}()

	d.refreshImages()
	if d.Frame().Seq == 0 {
		d.render(d.seq.Current())
	}
	log.Printf("INFO: slideshow: started with %d images", d.seq.Current().ImageCount)

	poll := time.NewTicker(d.cfg.ImagePoll)
	defer poll.Stop()

	var (
		progress  *time.Ticker
		progressC <-chan time.Time
	)
	defer func() {
		if progress != nil {
			progress.Stop()
		}
	}()

	radarTimer := time.NewTimer(time.Hour)
	radarTimer.Stop()
	defer radarTimer.Stop()
	var (
		radarC     <-chan time.Time
		armedToken uint64
	)

	for {
		// Pausing stops the ticker that drives both progress and the advance.
		switch {
		case d.seq.Playing() && progress == nil:
			progress = time.NewTicker(d.seq.Config().ProgressTick)
			progressC = progress.C
		case !d.seq.Playing() && progress != nil:
			progress.Stop()
			progress, progressC = nil, nil
		}

		if deadline, ok := d.watch.Deadline(); ok {
			if radarC == nil || armedToken != d.watch.Token() {
				radarTimer.Reset(max(deadline.Sub(d.now()), 0))
				radarC, armedToken = radarTimer.C, d.watch.Token()
			}
		} else if radarC != nil {
			radarTimer.Stop()
			radarC = nil
		}

		select {
		case <-ctx.Done():
			log.Printf("INFO: slideshow: stopping")
			return nil

		case <-progressC:
			dec, advanced := d.seq.Tick(d.now())
			if advanced {
				d.render(dec)
			} else if dec.Kind != KindEmpty {
				d.update(dec)
			}

		case <-poll.C:
			d.refreshImages()

		case <-radarC:
			radarC = nil
			if d.watch.Expire(d.now()) {
				log.Printf("WARN: slideshow: radar load %d timed out", d.watch.Token())
				dec, _ := d.seq.OnRadarFailure(ErrRadarTimeout)
				d.update(dec)
			}

		case in := <-d.intents:
			in.reply <- d.handle(in)
		}
	}
}

func (d *Driver) handle(in intent) result {
	now := d.now()

	switch in.op {
	case opNext:
		return result{frame: d.render(d.seq.Advance(now))}

	case opPrevious:
		return result{frame: d.render(d.seq.Retreat(now))}

	case opToggle:
		return result{frame: d.update(d.seq.TogglePlay(now))}

	case opGesture:
		it := d.cfg.Gesture.Classify(in.gesture)
		var f Frame
		switch it {
		case IntentNext:
			f = d.render(d.seq.Advance(now))
		case IntentPrevious:
			f = d.render(d.seq.Retreat(now))
		case IntentToggle:
			f = d.update(d.seq.TogglePlay(now))
		default:
			f = d.Frame()
		}
		return result{frame: f, intent: it}

	case opViewport:
		if in.width > 0 && in.height > 0 {
			d.viewport = in.width / in.height
		}
		return result{frame: d.update(d.seq.Current())}

	case opRadarLoaded:
		accepted := d.watch.Loaded(in.token, now)
		if !accepted && d.watch.State() == RadarFailed && d.watch.Token() == in.token {
			log.Printf("WARN: slideshow: radar load %d reported after it timed out", in.token)
		}
		return result{frame: d.update(d.seq.Current()), accepted: accepted}

	case opRadarFailed:
		accepted := d.watch.Fail(in.token, in.reason)
		if accepted {
			log.Printf("WARN: slideshow: radar load %d failed: %s", in.token, in.reason)
			d.seq.OnRadarFailure(in.reason)
		}
		return result{frame: d.update(d.seq.Current()), accepted: accepted}

	case opRefresh:
		d.refreshImages()
		return result{frame: d.Frame()}
	}
	return result{frame: d.Frame()}
}

// render publishes a new slide. A radar slide starts a fresh load.
func (d *Driver) render(dec Decision) Frame {
	if dec.Kind == KindRadar {
		now := d.now()
		token := d.watch.Begin(now)
		d.radarRef = nil
		if d.radar != nil {
			if ref, ok := d.radar.Latest(); ok {
				d.radarRef = &ref
				d.radarBust = now.UnixMilli()
			}
		}
		if d.radarRef == nil {
			d.watch.Fail(token, errNoRadarData)
		}
	} else {
		d.watch.Cancel()
	}

	log.Printf("DEBUG: slideshow: slide %d %s %s", dec.SlideCursor, dec.Kind, dec.Image)
	return d.update(dec)
}

// update republishes the current slide without starting a new one.
func (d *Driver) update(dec Decision) Frame {
	f := Frame{Decision: dec}
	switch dec.Kind {
	case KindPhoto:
		f.Fit = d.fit(dec.Image)
	case KindRadar:
		f.Radar = d.radarPanel()
	}
	return d.publish(f)
}

func (d *Driver) publish(f Frame) Frame {
	d.mu.Lock()
	f.Seq = d.frame.Seq + 1
	d.frame = f
	d.mu.Unlock()

	d.bcast.Publish(f)
	return f
}

func (d *Driver) radarPanel() *RadarPanel {
	p := &RadarPanel{
		Token: d.watch.Token(),
		State: d.watch.State(),
		Error: d.watch.Reason(),
	}
	if d.radarRef != nil {
		p.URL = fmt.Sprintf("%s?t=%d", d.radarRef.URL, d.radarBust)
		p.Timestamp = d.radarRef.CapturedAt.UnixMilli()
		p.Location = d.radarRef.Location
	}
	return p
}

func (d *Driver) fit(img ImageRef) FitMode {
	r, ok := d.ratios[img]
	if !ok || d.viewport <= 0 {
		return ""
	}
	return Fit(r, d.viewport)
}

func (d *Driver) refreshImages() {
	list, err := d.images.List()
	if err != nil {
		log.Printf("ERROR: slideshow: list images: %v", err)
		return
	}

	refs := make([]ImageRef, 0, len(list))
	ratios := make(map[ImageRef]float64, len(list))
	for _, img := range list {
		ref := ImageRef(img.URL)
		refs = append(refs, ref)
		if r := img.AspectRatio(); r > 0 {
			ratios[ref] = r
		}
	}
	d.ratios = ratios

	dec, rerender := d.seq.SetImageSet(refs, d.now())
	if rerender {
		log.Printf("INFO: slideshow: image set now has %d images", dec.ImageCount)
		d.render(dec)
		return
	}

	// Mid-sequence change: keep what is on screen, only the count moves.
	current := d.Frame()
	if current.Seq > 0 && current.ImageCount != dec.ImageCount {
		log.Printf("DEBUG: slideshow: image set changed to %d images", dec.ImageCount)
		current.ImageCount = dec.ImageCount
		d.publish(current)
	}
}

// Frame returns the most recently published frame.
func (d *Driver) Frame() Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frame
}

// Subscribe returns a keep-latest stream of frames.
func (d *Driver) Subscribe() (string, <-chan Frame, func()) {
	return d.bcast.Subscribe()
}

// Done is closed when Run returns.
func (d *Driver) Done() <-chan struct{} { return d.done }

func (d *Driver) Next(ctx context.Context) (Frame, error) {
	r, err := d.do(ctx, intent{op: opNext})
	return r.frame, err
}

func (d *Driver) Previous(ctx context.Context) (Frame, error) {
	r, err := d.do(ctx, intent{op: opPrevious})
	return r.frame, err
}

func (d *Driver) Toggle(ctx context.Context) (Frame, error) {
	r, err := d.do(ctx, intent{op: opToggle})
	return r.frame, err
}

// Gesture classifies a released touch and applies the resulting intent.
func (d *Driver) Gesture(ctx context.Context, g Gesture) (Intent, Frame, error) {
	r, err := d.do(ctx, intent{op: opGesture, gesture: g})
	return r.intent, r.frame, err
}

// SetViewport records the display size used for fit hints.
func (d *Driver) SetViewport(ctx context.Context, width, height float64) (Frame, error) {
	r, err := d.do(ctx, intent{op: opViewport, width: width, height: height})
	return r.frame, err
}

// RadarLoaded reports that the display finished loading the radar image for
// token. The flag is false when the report was stale or too late.
func (d *Driver) RadarLoaded(ctx context.Context, token uint64) (Frame, bool, error) {
	r, err := d.do(ctx, intent{op: opRadarLoaded, token: token})
	return r.frame, r.accepted, err
}

// RadarFailed reports that the display could not show the radar image.
func (d *Driver) RadarFailed(ctx context.Context, token uint64, reason string) (Frame, bool, error) {
	r, err := d.do(ctx, intent{op: opRadarFailed, token: token, reason: reason})
	return r.frame, r.accepted, err
}

// Refresh re-reads the image set immediately.
func (d *Driver) Refresh(ctx context.Context) (Frame, error) {
	r, err := d.do(ctx, intent{op: opRefresh})
	return r.frame, err
}

func (d *Driver) do(ctx context.Context, in intent) (result, error) {
	in.reply = make(chan result, 1)
	select {
	case d.intents <- in:
	case <-d.done:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case r := <-in.reply:
		return r, nil
	case <-d.done:
		return result{}, ErrStopped
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}
