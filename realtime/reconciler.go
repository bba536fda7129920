// Package realtime subscribes to the backend's change feed and reconciles
// row changes into the in-memory directory and the local cache.
//
// The feed speaks Phoenix channel frames over a WebSocket. One goroutine
// reads the socket and applies events sequentially in delivery order.
// Business rows are applied as they arrive; rating rows only signal that the
// rated business's aggregate must be refetched, since ratings themselves are
// never cached. A dropped connection is redialed with capped, jittered
// exponential backoff, and the OnReconnect hook runs after each successful
// reconnect so the caller can resync whatever was missed.
package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

const (
	joinTimeout    = 10 * time.Second
	minHealthyTime = 5 * time.Second
)

// State is the in-memory directory the reconciler patches
type State interface {
	Apply(ev types.ChangeEvent)
	Lookup(id string) (types.Business, bool)
	PatchAggregate(agg types.Aggregate) (types.Business, bool)
}

// Store is the cache the reconciler writes through
type Store interface {
	ApplyChange(ctx context.Context, ev types.ChangeEvent) error
	VersionMetadata(ctx context.Context) (types.DataVersion, bool)
	SetVersionMetadata(ctx context.Context, v types.DataVersion) error
}

// AggregateFetcher refetches the rating summary of one business
type AggregateFetcher interface {
	FetchAggregate(ctx context.Context, businessID string) (types.Aggregate, error)
}

// Config configures the change feed connection
type Config struct {
	URL         string // full websocket URL including apikey
	AccessToken string // sent with phx_join
	Heartbeat   time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxAttempts int    // consecutive reconnect attempts before giving up, 0 = forever
	Dial        Dialer // nil = WebsocketDialer
}

// Reconciler applies realtime changes to a State and a Store
type Reconciler struct {
	cfg     Config
	state   State
	store   Store
	ratings AggregateFetcher
	logger  *zap.SugaredLogger
	now     func() time.Time
	rand    func() float64
	ref     atomic.Int64

	mu          sync.Mutex
	onReconnect func(ctx context.Context)
}

// New creates a reconciler. Zero durations in cfg fall back to a 25s
// heartbeat and 500ms..30s backoff.
func New(cfg Config, state State, store Store, ratings AggregateFetcher, log *zap.SugaredLogger) *Reconciler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = WebsocketDialer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{
		cfg:     cfg,
		state:   state,
		store:   store,
		ratings: ratings,
		logger:  log,
		now:     time.Now,
	}
}

// OnReconnect registers fn to run after every successful reconnect. It runs
// on the reader goroutine before any event of the new connection is applied.
func (r *Reconciler) OnReconnect(fn func(ctx context.Context)) {
	r.mu.Lock()
	r.onReconnect = fn
	r.mu.Unlock()
}

func (r *Reconciler) reconnectHook() func(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.onReconnect
}

func (r *Reconciler) nextRef() string {
	return strconv.FormatInt(r.ref.Add(1), 10)
}

// Subscription is a live change feed. Stop it with Unsubscribe or by
// cancelling the context passed to Subscribe.
type Subscription struct {
	r        *Reconciler
	onChange func(types.ChangeEvent)
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	closed bool
	conn   Conn
}

// Subscribe connects and joins the change channel. It returns once the join
// is acknowledged; events are then applied on a background goroutine and
// passed to onChange (which may be nil) after they are applied.
func (r *Reconciler) Subscribe(ctx context.Context, onChange func(types.ChangeEvent)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := r.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		r:        r,
		onChange: onChange,
		cancel:   cancel,
		done:     make(chan struct{}),
		conn:     conn,
	}
	r.logger.Infow("Realtime subscription started", "topic", channelTopic)
	go sub.run(ctx, conn)
	return sub, nil
}

// Unsubscribe stops the feed. It is idempotent, and no onChange callback
// runs after it returns. Do not call it from inside onChange; cancel the
// subscription context instead.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		if leave, err := newFrame(channelTopic, eventLeave, s.r.nextRef(), struct{}{}); err == nil {
			_ = conn.WriteJSON(leave)
		}
		conn.Close()
	}
	s.r.logger.Infow("Realtime subscription stopped")
}

// Done is closed when the reader goroutine has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) setConn(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

// connect dials and waits for the join reply
func (r *Reconciler) connect(ctx context.Context) (Conn, error) {
	conn, err := r.cfg.Dial(ctx, r.cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to realtime")
	}

	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	stop := context.AfterFunc(joinCtx, func() { conn.Close() })

	err = r.join(conn)
	if !stop() {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "join realtime channel")
		}
		return nil, errors.Mark(errors.New("realtime join timed out"), errors.ErrTimeout)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (r *Reconciler) join(conn Conn) error {
	ref := r.nextRef()
	frame, err := newFrame(channelTopic, eventJoin, ref, newJoinPayload(r.cfg.AccessToken))
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(frame); err != nil {
		return errors.Mark(errors.Wrap(err, "send join"), errors.ErrServiceUnavailable)
	}

	for {
		var reply Frame
		if err := conn.ReadJSON(&reply); err != nil {
			return errors.Mark(errors.Wrap(err, "await join reply"), errors.ErrServiceUnavailable)
		}
		if reply.Event != eventReply || reply.Ref != ref {
			continue
		}
		var p replyPayload
		if err := json.Unmarshal(reply.Payload, &p); err != nil {
			return errors.Wrap(err, "decode join reply")
		}
		if p.Status != "ok" {
			return errors.WithDetailf(
				errors.Mark(errors.Newf("realtime join rejected: %s", p.Status), errors.ErrUnauthorized),
				"response: %s", string(p.Response))
		}
		return nil
	}
}

func (s *Subscription) run(ctx context.Context, conn Conn) {
	defer close(s.done)
	r := s.r
	bo := newBackoff(r.cfg.BackoffBase, r.cfg.BackoffMax)
	if r.rand != nil {
		bo.rand = r.rand
	}
	healthy := r.cfg.Heartbeat
	if healthy < minHealthyTime {
		healthy = minHealthyTime
	}

	for {
		started := r.now()
		err := s.session(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Warnw("Realtime connection lost", logger.FieldError, err)
		if r.now().Sub(started) >= healthy {
			bo.reset()
		}

		for {
			if r.cfg.MaxAttempts > 0 && bo.attempt >= r.cfg.MaxAttempts {
				r.logger.Errorw("Realtime reconnect abandoned", logger.FieldAttempt, bo.attempt)
				return
			}
			delay := bo.next()
			r.logger.Infow("Realtime reconnecting",
				logger.FieldAttempt, bo.attempt,
				logger.FieldBackoff, delay.String(),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			c, err := r.connect(ctx)
			if err == nil {
				conn = c
				break
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Warnw("Realtime reconnect failed", logger.FieldAttempt, bo.attempt, logger.FieldError, err)
		}

		if !s.setConn(conn) {
			conn.Close()
			return
		}
		r.logger.Infow("Realtime reconnected")
		if hook := r.reconnectHook(); hook != nil {
			hook(ctx)
		}
	}
}

// session reads one connection until it fails or ctx is cancelled
func (s *Subscription) session(ctx context.Context, conn Conn) error {
	r := s.r
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, func() { conn.Close() })
	defer stop()

	var pending atomic.Value // ref of the unanswered heartbeat, "" when none
	pending.Store("")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-sessCtx.Done():
				return
			case <-ticker.C:
			}
			if pending.Load().(string) != "" {
				r.logger.Warnw("Realtime heartbeat unanswered, closing connection")
				cancel()
				return
			}
			ref := r.nextRef()
			frame, _ := newFrame(phoenixTopic, eventHeartbeat, ref, struct{}{})
			pending.Store(ref)
			if err := conn.WriteJSON(frame); err != nil {
				r.logger.Debugw("Realtime heartbeat failed", logger.FieldError, err)
				cancel()
				return
			}
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return errors.Mark(errors.Wrap(err, "read realtime frame"), errors.ErrServiceUnavailable)
		}

		switch frame.Event {
		case eventReply:
			if frame.Topic == phoenixTopic && frame.Ref != "" && frame.Ref == pending.Load().(string) {
				pending.Store("")
			}
		case eventChange:
			ev, err := parseChange(frame.Payload)
			if err != nil {
				r.logger.Warnw("Ignoring malformed realtime change", logger.FieldError, err)
				continue
			}
			s.handle(ctx, ev)
		case eventError, eventClose:
			if frame.Topic == channelTopic {
				return errors.Mark(errors.Newf("realtime channel %s", frame.Event), errors.ErrServiceUnavailable)
			}
		default:
			r.logger.Debugw("Ignoring realtime frame", "topic", frame.Topic, logger.FieldEventType, frame.Event)
		}
	}
}

// handle applies one change under the subscription lock so that nothing is
// applied or reported after Unsubscribe returns
func (s *Subscription) handle(ctx context.Context, ev types.ChangeEvent) {
	r := s.r
	switch ev.Table {
	case types.TableBusinesses:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}

		r.state.Apply(ev)
		change := ev
		if ev.Type != types.ChangeDelete {
			if merged, ok := r.state.Lookup(ev.ID); ok {
				change.Business = &merged
			}
		}
		r.persist(ctx, change)
		r.bumpVersion(ctx, ev.CommitTimestamp)
		r.logger.Debugw("Applied business change",
			logger.FieldBusinessID, ev.ID,
			logger.FieldEventType, string(ev.Type),
		)
		if s.onChange != nil {
			s.onChange(change)
		}

	case types.TableRatings:
		agg, err := r.ratings.FetchAggregate(ctx, ev.ID)
		if err != nil {
			r.logger.Warnw("Aggregate refetch failed",
				logger.FieldBusinessID, ev.ID,
				logger.FieldError, err,
			)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}

		if b, ok := r.state.PatchAggregate(agg); ok {
			ev.Business = &b
			r.persist(ctx, types.ChangeEvent{
				Table:    types.TableBusinesses,
				Type:     types.ChangeUpdate,
				ID:       b.ID,
				Business: &b,
			})
		}
		r.bumpVersion(ctx, ev.CommitTimestamp)
		r.logger.Debugw("Patched rating aggregate",
			logger.FieldBusinessID, ev.ID,
			logger.FieldCount, agg.RatingCount,
		)
		if s.onChange != nil {
			s.onChange(ev)
		}
	}
}

func (r *Reconciler) persist(ctx context.Context, ev types.ChangeEvent) {
	if err := r.store.ApplyChange(ctx, ev); err != nil {
		if errors.Is(err, errors.ErrStorageUnavailable) {
			r.logger.Debugw("Cache unavailable, change kept in memory only", logger.FieldBusinessID, ev.ID)
			return
		}
		r.logger.Warnw("Failed to cache realtime change",
			logger.FieldBusinessID, ev.ID,
			logger.FieldError, err,
		)
	}
}

// bumpVersion advances the stored LastUpdated to the commit time and stamps
// LastSync. Nothing is written before the first full sync.
func (r *Reconciler) bumpVersion(ctx context.Context, commitTS string) {
	v, ok := r.store.VersionMetadata(ctx)
	if !ok {
		return
	}
	if commitTS > v.LastUpdated {
		v.LastUpdated = commitTS
	}
	v.LastSync = r.now().UTC()
	if err := r.store.SetVersionMetadata(ctx, v); err != nil {
		r.logger.Debugw("Failed to persist version after realtime change", logger.FieldError, err)
	}
}
