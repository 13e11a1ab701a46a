package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/pkg/city"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/bastiangx/cityserve/pkg/repository"
	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is the part of repository.Repository the server talks to.
type Store interface {
	Query(prefix string) ([]city.City, error)
	ByName(name string) ([]city.City, error)
	Insert(c city.City) error
	Remove(c city.City) (bool, error)
	Stats() (repository.Stats, error)
}

// Server answers msgpack requests read from one stream on another.
type Server struct {
	store      Store
	config     config.ServerConfig
	settings   *config.Config
	configPath string
	clock      clockwork.Clock
	logger     *log.Logger
	in         io.Reader
	dec        *msgpack.Decoder
	out        *bufio.Writer
	enc        *msgpack.Encoder
	requests   atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the clock used for response timings.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithIO reads requests from r and writes responses to w instead of stdin and stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(s *Server) {
		s.in = r
		s.dec = msgpack.NewDecoder(bufio.NewReader(r))
		s.out = bufio.NewWriter(w)
		s.enc = msgpack.NewEncoder(s.out)
	}
}

// WithLogger replaces the default "Server" logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithConfigFile enables the config action. Limit changes are applied to cfg
// and saved to path; the server section of cfg replaces the limits given to
// NewServer.
func WithConfigFile(cfg *config.Config, path string) Option {
	return func(s *Server) {
		s.settings = cfg
		s.configPath = path
		s.config = cfg.Server
	}
}

// NewServer creates a server over store using stdin/stdout for IPC.
func NewServer(store Store, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		store:  store,
		config: cfg,
		clock:  clockwork.NewRealClock(),
		logger: logger.New("Server"),
	}
	WithIO(os.Stdin, os.Stdout)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start announces readiness and serves requests until the input ends or ctx is
// cancelled. It returns an error only when the stream itself is broken.
//
// If the input is an io.Closer it is closed when ctx is done, which unblocks a
// pending read. Other readers are only checked between requests, and so are
// files the runtime cannot poll (a blocking stdin), so there a cancel takes
// effect once the next request arrives or the input ends.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Debug("Starting server")

	if c, ok := s.in.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = c.Close()
		})
		defer stop()
	}

	ready := ReadyMessage{Status: "ready"}
	if stats, err := s.store.Stats(); err == nil {
		ready.Count = stats.Records
	}
	if err := s.send(ready); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			s.logger.Debugf("Stopping after %d requests", s.requests.Load())
			return nil
		}

		var raw msgpack.RawMessage
		if err := s.dec.Decode(&raw); err != nil {
			if ctx.Err() != nil {
				s.logger.Debugf("Stopping after %d requests", s.requests.Load())
				return nil
			}
			if errors.Is(err, io.EOF) {
				s.logger.Debugf("Input closed after %d requests", s.requests.Load())
				return nil
			}
			s.logger.Errorf("Reading request: %v", err)
			_ = s.sendError("", "malformed msgpack stream", CodeBadRequest)
			return fmt.Errorf("failed to read request: %w", err)
		}
		if err := s.handle(raw); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handle answers one request. The returned error is a write failure.
func (s *Server) handle(raw []byte) error {
	s.requests.Add(1)

	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		s.logger.Debugf("Unmarshaling request: %v", err)
		return s.sendError("", fmt.Sprintf("invalid request: %v", err), CodeBadRequest)
	}

	switch env.Action {
	case "":
		return s.handleQuery(QueryRequest{ID: env.ID, Prefix: env.Prefix, Limit: env.Limit, Exact: env.Exact, Origin: env.Origin})
	case ActionInsert:
		return s.handleInsert(ActionRequest{ID: env.ID, Action: env.Action, City: env.City})
	case ActionRemove:
		return s.handleRemove(ActionRequest{ID: env.ID, Action: env.Action, City: env.City})
	case ActionStats:
		return s.handleStats(env.ID)
	case ActionConfig:
		return s.handleConfig(ActionRequest{
			ID:           env.ID,
			Action:       env.Action,
			MaxLimit:     env.MaxLimit,
			DefaultLimit: env.DefaultLimit,
			MaxPrefix:    env.MaxPrefix,
		})
	default:
		return s.sendError(env.ID, fmt.Sprintf("Unknown action: %s", env.Action), CodeBadRequest)
	}
}

func (s *Server) handleQuery(req QueryRequest) error {
	start := s.clock.Now()

	if n := utf8.RuneCountInString(req.Prefix); s.config.MaxPrefix > 0 && n > s.config.MaxPrefix {
		s.logger.Debugf("Prefix too long in request %s: %d runes", req.ID, n)
		return s.sendError(req.ID, fmt.Sprintf("Prefix exceeds maximum length of %d characters", s.config.MaxPrefix), CodeBadRequest)
	}
	if req.Origin != nil && !req.Origin.Valid() {
		return s.sendError(req.ID, "Origin is not a valid coordinate", CodeBadRequest)
	}

	var cities []city.City
	var err error
	if req.Exact {
		cities, err = s.store.ByName(req.Prefix)
	} else {
		cities, err = s.store.Query(req.Prefix)
	}
	if err != nil {
		return s.sendStoreError(req.ID, err)
	}

	shown := cities[:min(s.limit(req.Limit), len(cities))]
	results := make([]CityResult, len(shown))
	for i, c := range shown {
		results[i] = toResult(c, req.Origin)
	}

	return s.send(QueryResponse{
		ID:        req.ID,
		Results:   results,
		Count:     len(cities),
		TimeTaken: s.clock.Since(start).Microseconds(),
	})
}

// limit applies the configured default and cap to a requested limit.
func (s *Server) limit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return max(limit, 1)
}

func toResult(c city.City, origin *city.Coord) CityResult {
	r := CityResult{
		ID:      c.ID,
		Country: c.Country,
		Name:    c.Name,
		Lat:     c.Coord.Lat,
		Lon:     c.Coord.Lon,
		Geohash: c.Coord.Geohash(),
	}
	if origin != nil {
		d := origin.DistanceKm(c.Coord)
		r.Distance = &d
	}
	return r
}

func (s *Server) handleInsert(req ActionRequest) error {
	c, msg := checkCity(req.City)
	if msg != "" {
		return s.sendError(req.ID, msg, CodeBadRequest)
	}
	if c.Name == "" {
		return s.send(ActionResponse{ID: req.ID, Status: "ignored"})
	}
	if err := s.store.Insert(c); err != nil {
		return s.sendStoreError(req.ID, err)
	}
	s.logger.Debugf("Inserted %s via request %s", c, req.ID)
	return s.send(ActionResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleRemove(req ActionRequest) error {
	c, msg := checkCity(req.City)
	if msg != "" {
		return s.sendError(req.ID, msg, CodeBadRequest)
	}
	removed, err := s.store.Remove(c)
	if err != nil {
		return s.sendStoreError(req.ID, err)
	}
	return s.send(ActionResponse{ID: req.ID, Status: "ok", Removed: &removed})
}

func (s *Server) handleStats(id string) error {
	stats, err := s.store.Stats()
	if err != nil {
		return s.sendStoreError(id, err)
	}
	return s.send(ActionResponse{
		ID:     id,
		Status: "ok",
		Stats: &StatsInfo{
			Records:      stats.Records,
			Names:        stats.Names,
			Nodes:        stats.Nodes,
			FreeSlots:    stats.FreeSlots,
			CacheEntries: stats.Cache["cacheEntries"],
			CacheHits:    stats.Cache["cacheHits"],
			CacheMisses:  stats.Cache["cacheMisses"],
			Requests:     s.requests.Load(),
		},
	})
}

// handleConfig applies new limits and persists them. The running limits only
// change once the file was written.
func (s *Server) handleConfig(req ActionRequest) error {
	if s.settings == nil || s.configPath == "" {
		return s.sendError(req.ID, "No config file to update", CodeBadRequest)
	}

	next := *s.settings
	if err := next.Update(s.configPath, req.MaxLimit, req.DefaultLimit, req.MaxPrefix); err != nil {
		s.logger.Errorf("Saving config to %s: %v", s.configPath, err)
		return s.sendError(req.ID, "Failed to save config", CodeInternal)
	}
	*s.settings = next
	s.config = next.Server
	s.logger.Debugf("Limits now max=%d default=%d prefix=%d",
		s.config.MaxLimit, s.config.DefaultLimit, s.config.MaxPrefix)

	return s.send(ActionResponse{
		ID:     req.ID,
		Status: "ok",
		Config: &LimitsInfo{
			MaxLimit:     s.config.MaxLimit,
			DefaultLimit: s.config.DefaultLimit,
			MaxPrefix:    s.config.MaxPrefix,
		},
	})
}

// checkCity returns the city of an action or a message saying why it is unusable.
func checkCity(c *city.City) (city.City, string) {
	switch {
	case c == nil:
		return city.City{}, "Missing 'city' field"
	case c.ID == 0:
		return city.City{}, "City has no id"
	case !c.Coord.Valid():
		return city.City{}, "City has an invalid coordinate"
	}
	return *c, ""
}

func (s *Server) sendStoreError(id string, err error) error {
	if errors.Is(err, repository.ErrNotInitialized) {
		return s.sendError(id, err.Error(), CodeNotInitialized)
	}
	s.logger.Errorf("Request %s failed: %v", id, err)
	return s.sendError(id, "Internal server error", CodeInternal)
}

// send encodes one message and flushes it so the client sees it immediately.
func (s *Server) send(v any) error {
	if err := s.enc.Encode(v); err != nil {
		s.logger.Errorf("Encoding response: %v", err)
		return err
	}
	return s.out.Flush()
}

func (s *Server) sendError(id, message string, code int) error {
	return s.send(ErrorResponse{ID: id, Error: message, Code: code})
}
