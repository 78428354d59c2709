// Package server hosts a Config on a single control goroutine. Clients
// hand it requests through the Request methods, a pump goroutine feeds it
// the transport replies, and every loop iteration applies both.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"golang.org/x/time/rate"

	"github.com/twitter/equalizer/async"
	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/config"
	"github.com/twitter/equalizer/transport"
)

const (
	// DefaultTickRate is how often the loop steps when idle.
	DefaultTickRate = 10 * time.Millisecond

	// DefaultStartupGaugeSpikeLen is how long ServerStartedGauge stays up
	// after a start.
	DefaultStartupGaugeSpikeLen = time.Minute
)

// ErrStopped is returned by requests to a stopped server.
var ErrStopped = errors.New("server is stopped")

// Settings tune the control loop.
type Settings struct {
	// MaxFPS limits how often frames start, 0 for no limit.
	MaxFPS float64
	// TickRate is how often the loop steps without requests or replies.
	TickRate time.Duration
}

func (s Settings) String() string {
	return fmt.Sprintf("maxFPS: %g, tickRate: %s", s.MaxFPS, s.TickRate)
}

type requestKind int

const (
	requestInit requestKind = iota
	requestExit
	requestUpdate
	requestFrame
	requestFinishAll
	requestStopFrames
)

func (k requestKind) String() string {
	switch k {
	case requestInit:
		return "init"
	case requestExit:
		return "exit"
	case requestUpdate:
		return "update"
	case requestFrame:
		return "frame"
	case requestFinishAll:
		return "finishAll"
	case requestStopFrames:
		return "stopFrames"
	}
	return "unknown"
}

// request is a client call waiting for the loop, with the channel the
// loop answers on.
type request struct {
	kind       requestKind
	initID     string
	responseCh chan response
}

type response struct {
	frame uint32
	err   error
}

// Server owns a Config and serializes every operation on it.
//
// Only the loop goroutine touches the config, apart from the reply pump
// which may only call Route. Blocking work such as throttled frame starts
// runs on the async runner, whose callbacks are again run by the loop.
type Server struct {
	cfg      *config.Config
	tr       transport.Transport
	stat     stats.StatsReceiver
	settings Settings

	requestCh   chan request
	asyncRunner async.Runner
	limiter     *rate.Limiter
	stepTicker  *time.Ticker

	// requests in arrival order, not yet answered
	pending []request
	// set while the head of pending waits for the frame limiter
	throttled bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	started   time.Time
}

// NewServer creates a server for cfg, which must use tr as its launcher
// and command sender. The loop runs once Start is called.
func NewServer(cfg *config.Config, tr transport.Transport, stat stats.StatsReceiver, settings Settings) *Server {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if settings.TickRate == 0 {
		settings.TickRate = DefaultTickRate
	}
	s := &Server{
		cfg:         cfg,
		tr:          tr,
		stat:        stat,
		settings:    settings,
		requestCh:   make(chan request, 1),
		asyncRunner: async.NewRunner(),
	}
	if settings.MaxFPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(settings.MaxFPS), 1)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

func (s *Server) Config() *config.Config { return s.cfg }

// Healthy is true while the config is running.
func (s *Server) Healthy() bool { return s.cfg.IsRunning() }

// Start runs the reply pump and the control loop until ctx is done or
// Stop is called.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		log.WithFields(log.Fields{"config": s.cfg.Name(), "settings": s.settings}).Info("Starting server loop")
		s.started = time.Now()
		s.stepTicker = time.NewTicker(s.settings.TickRate)
		stats.ReportServerRestart(s.stat, stats.ServerStartedGauge, DefaultStartupGaugeSpikeLen)
		go func() {
			select {
			case <-ctx.Done():
				s.Stop()
			case <-s.ctx.Done():
			}
		}()
		go s.pump()
		go s.loop()
	})
}

// Done is closed once the server stops.
func (s *Server) Done() <-chan struct{} { return s.ctx.Done() }

// Stop ends the loop. Pending and later requests fail with ErrStopped.
// The config is left as it is, callers exit it first.
func (s *Server) Stop() {
	s.cancel()
}

func (s *Server) RequestInit(ctx context.Context, initID string) error {
	if initID == "" {
		initID = fabric.NewID()
	}
	return s.request(ctx, request{kind: requestInit, initID: initID}).err
}

func (s *Server) RequestExit(ctx context.Context) error {
	return s.request(ctx, request{kind: requestExit}).err
}

func (s *Server) RequestUpdate(ctx context.Context) error {
	return s.request(ctx, request{kind: requestUpdate}).err
}

// RequestFrame starts the next frame and returns its number once the
// frame latency frames before it finished.
func (s *Server) RequestFrame(ctx context.Context) (uint32, error) {
	resp := s.request(ctx, request{kind: requestFrame})
	return resp.frame, resp.err
}

// RequestFinishAll returns once every started frame finished.
func (s *Server) RequestFinishAll(ctx context.Context) error {
	return s.request(ctx, request{kind: requestFinishAll}).err
}

func (s *Server) RequestStopFrames(ctx context.Context) error {
	return s.request(ctx, request{kind: requestStopFrames}).err
}

func (s *Server) request(ctx context.Context, r request) response {
	s.stat.Counter(stats.ServerRequestCounter).Inc(1)
	if s.ctx.Err() != nil {
		return response{err: ErrStopped}
	}
	r.responseCh = make(chan response, 1)
	select {
	case s.requestCh <- r:
	case <-ctx.Done():
		return response{err: ctx.Err()}
	case <-s.ctx.Done():
		return response{err: ErrStopped}
	}
	select {
	case resp := <-r.responseCh:
		return resp
	case <-ctx.Done():
		return response{err: ctx.Err()}
	case <-s.ctx.Done():
		return response{err: ErrStopped}
	}
}

// pump hands every transport reply to the config. It never blocks on the
// loop, so that a loop blocked in a resource sync still gets its replies.
func (s *Server) pump() {
	replies := s.tr.Replies()
	for {
		select {
		case r, ok := <-replies:
			if !ok {
				return
			}
			s.cfg.Route(r)
		case <-s.ctx.Done():
			return
		}
	}
}

// loop steps until the server stops. It wakes on requests, queued replies
// and the tick, which also collects async callbacks.
func (s *Server) loop() {
	defer s.stepTicker.Stop()
	for {
		s.step()

		select {
		case req := <-s.requestCh:
			s.pending = append(s.pending, req)
		case <-s.cfg.Ready():
		case <-s.stepTicker.C:
		case <-s.ctx.Done():
			log.WithFields(log.Fields{"config": s.cfg.Name()}).Info("Server loop stopped")
			return
		}
	}
}

// step runs one loop iteration.
func (s *Server) step() {
	s.cfg.ProcessReplies()
	s.asyncRunner.ProcessMessages()
	s.addRequests()
	s.handleRequests()
	s.updateStats()
}

func (s *Server) addRequests() {
	for {
		select {
		case req := <-s.requestCh:
			s.pending = append(s.pending, req)
		default:
			return
		}
	}
}

// handleRequests answers the pending requests in order. A frame request
// over the frame rate limit holds back everything behind it.
func (s *Server) handleRequests() {
	for len(s.pending) > 0 && !s.throttled {
		req := s.pending[0]
		if req.kind == requestFrame && !s.allowFrame() {
			s.throttle(req)
			return
		}
		s.pending = s.pending[1:]
		s.handle(req)
	}
}

func (s *Server) allowFrame() bool {
	return s.limiter == nil || !s.cfg.IsRunning() || s.limiter.Allow()
}

// throttle waits for the limiter off the loop, then starts the frame.
func (s *Server) throttle(req request) {
	s.throttled = true
	s.stat.Counter(stats.FrameThrottledCounter).Inc(1)
	log.WithFields(log.Fields{"config": s.cfg.Name(), "frame": s.cfg.CurrentFrame() + 1}).Debug("Frame start throttled")
	s.asyncRunner.RunAsync(func() error {
		return s.limiter.Wait(s.ctx)
	}, func(err error) {
		s.throttled = false
		s.pending = s.pending[1:]
		if err != nil {
			req.responseCh <- response{err: errors.Wrap(err, "waiting for frame rate limit")}
			return
		}
		s.handle(req)
	})
}

func (s *Server) handle(req request) {
	var resp response
	switch req.kind {
	case requestInit:
		resp.err = s.cfg.Init(s.ctx, req.initID)
	case requestExit:
		resp.err = s.cfg.Exit(s.ctx)
	case requestUpdate:
		resp.err = s.cfg.Update(s.ctx)
	case requestFrame:
		resp.frame, resp.err = s.startFrame()
	case requestFinishAll:
		resp.err = s.finishAll()
	case requestStopFrames:
		if s.cfg.IsRunning() {
			s.cfg.StopFrames()
		} else {
			resp.err = config.ErrNotRunning
		}
	}
	fields := log.Fields{"config": s.cfg.Name(), "request": req.kind}
	if resp.err != nil {
		log.WithFields(fields).Warnf("Request failed: %v", resp.err)
	} else {
		log.WithFields(fields).Debug("Request done")
	}
	req.responseCh <- resp
}

// startFrame starts the next frame, then waits until the frame latency
// frames before it finished.
func (s *Server) startFrame() (uint32, error) {
	frame, err := s.cfg.StartFrame()
	if err != nil {
		return 0, err
	}
	if latency := s.cfg.Latency(); frame > latency {
		if err := s.waitFrame(frame - latency); err != nil {
			return frame, err
		}
	}
	return frame, nil
}

func (s *Server) finishAll() error {
	if !s.cfg.IsRunning() {
		return config.ErrNotRunning
	}
	s.cfg.FinishAllFrames()
	return s.waitFrame(s.cfg.CurrentFrame())
}

// waitFrame processes replies until frame finished, or the config gave up
// on the nodes working on it.
func (s *Server) waitFrame(frame uint32) error {
	for !s.cfg.CheckFrame(frame) {
		select {
		case <-s.cfg.Ready():
		case <-s.stepTicker.C:
		case <-s.ctx.Done():
			return ErrStopped
		}
	}
	return nil
}

func (s *Server) updateStats() {
	s.stat.Gauge(stats.ServerUptime_ms).Update(int64(time.Since(s.started) / time.Millisecond))
}
