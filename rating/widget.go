// Package rating implements optimistic star ratings.
//
// A Widget shows one business's rating summary. Submitting a score updates
// the summary immediately with a provisional average, then either adopts the
// server's recomputed aggregate or rolls back to the values it had before.
//
// At most one rating per (business, device) is enforced by the backend's
// uniqueness constraint on business_id and device_id. The device id is a
// random UUID kept in the local cache, so the constraint is soft: wiping the
// cache or using another device yields a new identity. The local markers of
// which businesses this device rated are a convenience view of the backend
// state and are corrected from it whenever a widget is opened and whenever
// a submission hits the uniqueness constraint.
package rating

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/validate"
	"github.com/teranos/jawala/logger"
)

// State is the submission state of a widget
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
)

// Backend is the remote side of ratings
type Backend interface {
	SubmitRating(ctx context.Context, in types.RatingInput) (types.Aggregate, error)
	DeviceRating(ctx context.Context, businessID, deviceID string) (score int, found bool, err error)
}

// View is a point-in-time copy of a widget
type View struct {
	BusinessID  string
	AvgRating   float64
	RatingCount int
	State       State
	MyRating    int  // score this device gave, 0 when HasRated is false
	HasRated    bool // a submission will edit the existing rating
	Err         error
}

// Options configures a widget
type Options struct {
	// UserName is attached to new ratings
	UserName string
	// OnAccepted receives the server aggregate after a successful submission
	OnAccepted func(ctx context.Context, agg types.Aggregate)
}

// Widget is the rating state of one open business detail
type Widget struct {
	ledger  *Ledger
	backend Backend
	opts    Options
	logger  *zap.SugaredLogger
	checked chan struct{}

	mu       sync.Mutex
	id       string
	avg      float64
	count    int
	state    State
	myRating int
	hasRated bool
	err      error
	closed   bool
	// gen moves whenever a submission starts; a check that began under an
	// older gen is stale
	gen uint64
}

// Open creates a widget for b from the local marker and starts an
// asynchronous check of the marker against the backend. Checked is closed
// once that check has finished.
func Open(ctx context.Context, ledger *Ledger, backend Backend, b types.Business, opts Options, log *zap.SugaredLogger) *Widget {
	w := &Widget{
		ledger:  ledger,
		backend: backend,
		opts:    opts,
		logger:  log,
		checked: make(chan struct{}),
		id:      b.ID,
		avg:     b.AvgRating,
		count:   b.RatingCount,
		state:   StateIdle,
	}
	if score, ok := ledger.Marker(ctx, b.ID); ok {
		w.myRating, w.hasRated = score, true
	}
	go func() {
		defer close(w.checked)
		w.reconcile(ctx, 0)
	}()
	return w
}

// Checked is closed when the open-time marker check has completed
func (w *Widget) Checked() <-chan struct{} {
	return w.checked
}

// Close detaches the widget. Pending checks and submissions no longer
// change it.
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// View returns the current widget state
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Widget) viewLocked() View {
	return View{
		BusinessID:  w.id,
		AvgRating:   w.avg,
		RatingCount: w.count,
		State:       w.state,
		MyRating:    w.myRating,
		HasRated:    w.hasRated,
		Err:         w.err,
	}
}

// reconcile aligns the local marker with the backend, in either direction.
// The answer is dropped when a submission started after the check was sent.
func (w *Widget) reconcile(ctx context.Context, gen uint64) {
	deviceID := w.ledger.DeviceID(ctx)
	score, found, err := w.backend.DeviceRating(ctx, w.id, deviceID)
	if err != nil {
		w.logger.Debugw("Rating check failed, keeping local marker",
			logger.FieldBusinessID, w.id,
			logger.FieldError, err,
		)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.gen != gen || w.state == StateSubmitting {
		w.logger.Debugw("Dropping stale rating check", logger.FieldBusinessID, w.id)
		return
	}
	w.hasRated = found
	w.myRating = 0
	if found {
		w.myRating = score
	}
	// under w.mu so a submission cannot mark in between
	w.syncMarker(ctx, score, found)
}

func (w *Widget) syncMarker(ctx context.Context, score int, found bool) {
	var err error
	if found {
		err = w.ledger.Mark(ctx, w.id, score)
	} else {
		err = w.ledger.Unmark(ctx, w.id)
	}
	if err != nil {
		w.logger.Debugw("Rating marker not persisted", logger.FieldBusinessID, w.id, logger.FieldError, err)
	}
}

// Provisional returns the average and count shown while a submission is in
// flight. An edit replaces prev with score; a fresh rating adds one.
func Provisional(avg float64, count int, score, prev int, edit bool) (float64, int) {
	if edit && count > 0 {
		return (avg*float64(count) - float64(prev) + float64(score)) / float64(count), count
	}
	return (avg*float64(count) + float64(score)) / float64(count+1), count + 1
}

// Submit rates the business with score. The widget shows the provisional
// summary until the backend answers. On failure the previous summary is
// restored and the returned error carries a user-visible hint.
func (w *Widget) Submit(ctx context.Context, score int) (View, error) {
	deviceID := w.ledger.DeviceID(ctx)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return View{}, errors.NewInvalidRequestError("rating widget for %s is closed", w.id)
	}
	if w.state == StateSubmitting {
		v := w.viewLocked()
		w.mu.Unlock()
		return v, errors.WithHint(
			errors.NewInvalidRequestError("rating for %s already in progress", w.id),
			"Please wait for the current rating to finish.",
		)
	}
	in := types.RatingInput{
		BusinessID: w.id,
		Rating:     score,
		DeviceID:   deviceID,
		UserName:   w.opts.UserName,
		Edit:       w.hasRated,
	}
	if err := validate.Struct(in); err != nil {
		w.mu.Unlock()
		return w.View(), errors.WithHint(err, "Please choose between 1 and 5 stars.")
	}

	prevAvg, prevCount := w.avg, w.count
	w.avg, w.count = Provisional(w.avg, w.count, score, w.myRating, in.Edit)
	w.state = StateSubmitting
	w.err = nil
	w.gen++
	w.mu.Unlock()

	w.logger.Debugw("Submitting rating",
		logger.FieldBusinessID, w.id,
		logger.FieldRating, score,
		"edit", in.Edit,
	)
	agg, err := w.backend.SubmitRating(ctx, in)

	if err != nil {
		if !errors.Is(err, errors.ErrConflict) && errors.UserMessage(err) == err.Error() {
			err = errors.WithHint(err, "Could not save your rating. Please try again.")
		}
		w.mu.Lock()
		if !w.closed {
			w.avg, w.count = prevAvg, prevCount
			w.state = StateRejected
			w.err = err
		}
		v := w.viewLocked()
		w.mu.Unlock()

		w.logger.Infow("Rating rejected", logger.FieldBusinessID, w.id, logger.FieldError, err)
		if errors.Is(err, errors.ErrDuplicateRating) {
			v = w.correctAfterDuplicate(ctx, deviceID, v)
		}
		return v, err
	}

	if err := w.ledger.Mark(ctx, w.id, score); err != nil {
		w.logger.Debugw("Rating marker not persisted", logger.FieldBusinessID, w.id, logger.FieldError, err)
	}

	w.mu.Lock()
	if !w.closed {
		w.avg, w.count = agg.AvgRating, agg.RatingCount
		w.myRating, w.hasRated = score, true
		w.state = StateAccepted
	}
	v := w.viewLocked()
	w.mu.Unlock()

	if w.opts.OnAccepted != nil {
		w.opts.OnAccepted(ctx, agg)
	}
	w.logger.Infow("Rating accepted",
		logger.FieldBusinessID, w.id,
		logger.FieldRating, score,
		logger.FieldCount, agg.RatingCount,
	)
	return v, nil
}

// correctAfterDuplicate marks the business as rated from the backend's record
// so the next submission is an edit
func (w *Widget) correctAfterDuplicate(ctx context.Context, deviceID string, v View) View {
	score, found, err := w.backend.DeviceRating(ctx, w.id, deviceID)
	if err != nil || !found {
		return v
	}
	w.syncMarker(ctx, score, true)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return v
	}
	w.myRating, w.hasRated = score, true
	return w.viewLocked()
}
