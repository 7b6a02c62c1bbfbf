package server

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"arenagame/protocol"
	"arenagame/utils"
	"arenagame/world"
)

type subscriber struct {
	ID       string
	Messages chan []byte
	codec    protocol.Codec
	c        *websocket.Conn
	once     sync.Once
}

// close hangs up without blocking the caller; the handshake can take
// seconds against an unresponsive peer.
func (sub *subscriber) close(code websocket.StatusCode, reason string) {
	sub.once.Do(func() {
		go sub.c.Close(code, reason)
	})
}

type Server struct {
	subscribers map[string]*subscriber
	mu          sync.RWMutex
	serveMux    http.ServeMux

	inbox chan any
	done  chan struct{}

	cfg      *utils.Config
	tuning   world.Tuning
	store    *world.Store
	sessions *world.Sessions
	sim      *world.Simulation
	log      *zap.Logger
	now      func() time.Time
}

func NewServer(cfg *utils.Config, log *zap.Logger) *Server {
	seed := cfg.Game.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := &Server{
		subscribers: make(map[string]*subscriber),
		inbox:       make(chan any, cfg.Server.InboxSize),
		done:        make(chan struct{}),
		cfg:         cfg,
		tuning:      cfg.Tuning(),
		store:       world.NewStore(),
		log:         log.Named("server"),
		now:         time.Now,
	}
	s.sessions = world.NewSessions(s.store, s.tuning, cfg.AdmissionPolicy(), s, rng, log.Named("sessions"))
	s.sim = world.NewSimulation(s.store, s.tuning, s, rng, log.Named("sim"))

	s.serveMux.HandleFunc("/ws", s.onConnection)
	if dir := cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.serveMux.Handle("/", http.FileServer(http.Dir(dir)))
		}
	}
	s.serveMux.HandleFunc("/debug/pprof/", pprof.Index)
	s.serveMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.serveMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.serveMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.serveMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.serveMux.ServeHTTP(w, r)
}

type Stats struct {
	Players     int
	Bullets     int
	Subscribers int
}

func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Players:     s.store.PlayerCount(),
		Bullets:     s.store.BulletCount(),
		Subscribers: len(s.subscribers),
	}
}

func (s *Server) addSubscriber(sub *subscriber) {
	s.mu.Lock()
	s.subscribers[sub.ID] = sub
	s.mu.Unlock()
}

func (s *Server) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub.ID)
	s.mu.Unlock()
}

// Publish encodes the event once per codec in use and queues it for every
// subscriber it reaches. A subscriber that cannot keep up is disconnected. An
// encoding failure only skips subscribers of that codec.
func (s *Server) Publish(event world.Event) {
	frames := make(map[protocol.Codec][]byte, 2)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for ID, sub := range s.subscribers {
		if !event.Reaches(ID) {
			continue
		}
		frame, ok := frames[sub.codec]
		if !ok {
			b, err := sub.codec.Encode(event.Type, event.Data)
			if err != nil {
				s.log.Error("encode event",
					zap.String("event", string(event.Type)),
					zap.String("subprotocol", sub.codec.Subprotocol()),
					zap.Error(err))
				continue
			}
			frames[sub.codec] = b
			frame = b
		}
		select {
		case sub.Messages <- frame:
		default:
			s.log.Warn("subscriber too slow", zap.String("player", ID))
			sub.close(websocket.StatusPolicyViolation, "write would block")
		}
	}
}

func (s *Server) onConnection(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   protocol.Subprotocols(),
		OriginPatterns: s.cfg.Server.OriginPatterns,
	})
	if err != nil {
		s.log.Debug("websocket accept", zap.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	if err := s.handleConnection(r.Context(), c); err != nil && !isClosed(err) {
		s.log.Debug("connection ended", zap.Error(err))
	}
}

func (s *Server) handleConnection(ctx context.Context, c *websocket.Conn) error {
	if s.cfg.Server.ReadLimit > 0 {
		c.SetReadLimit(s.cfg.Server.ReadLimit)
	}
	sub := &subscriber{
		ID:       ksuid.New().String(),
		Messages: make(chan []byte, s.cfg.Server.OutboxSize),
		codec:    protocol.ForSubprotocol(c.Subprotocol()),
		c:        c,
	}

	if !s.enqueue(ctx, join{sub}) {
		return ctx.Err()
	}
	defer s.enqueue(context.Background(), leave{sub})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		s.readMessages(ctx, sub)
	}()

	for {
		select {
		case msg := <-sub.Messages:
			if err := c.Write(ctx, sub.codec.MessageType(), msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) readMessages(ctx context.Context, sub *subscriber) {
	for {
		_, b, err := sub.c.Read(ctx)
		if err != nil {
			if !isClosed(err) {
				s.log.Debug("read", zap.String("player", sub.ID), zap.Error(err))
			}
			return
		}
		env, err := sub.codec.Decode(b)
		if err != nil {
			s.log.Debug("dropping malformed frame", zap.String("player", sub.ID), zap.Error(err))
			continue
		}
		if !s.enqueue(ctx, input{ID: sub.ID, env: env}) {
			return
		}
	}
}

func isClosed(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Serve runs the game loop and the HTTP server on l until ctx is done.
func Serve(ctx context.Context, l net.Listener, s *Server) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})
	g.Go(func() error {
		if err := httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Run starts a server from config.toml. args[1], when present, overrides the
// listen address.
func Run(args []string) error {
	cfg, err := utils.LoadConfig("config.toml")
	if err != nil {
		return err
	}
	if len(args) > 1 {
		cfg.Server.Address = args[1]
	}

	log, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	l, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return err
	}
	log.Info("listening", zap.String("url", "http://"+l.Addr().String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Serve(ctx, l, NewServer(cfg, log)); err != nil {
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
