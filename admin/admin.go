// Package admin implements the signed-in administrator's directory
// maintenance: adding, editing and deleting listings and bulk import from
// seed files. Every saved record is applied locally through the same entry
// points the realtime reconciler uses, so the CLI sees its own writes
// without waiting for the change feed.
package admin

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/jawala/directory"
	"github.com/teranos/jawala/directory/types"
	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/internal/util"
	"github.com/teranos/jawala/internal/validate"
	"github.com/teranos/jawala/logger"
	"github.com/teranos/jawala/remote"
)

// NotAdminHint is shown when a signed-in user lacks an admin profile
const NotAdminHint = "You are not authorized as an admin."

// Store is the cache mutation entry point
type Store interface {
	ApplyChange(ctx context.Context, ev types.ChangeEvent) error
}

// State is the in-memory directory
type State interface {
	Apply(ev types.ChangeEvent)
	Lookup(id string) (types.Business, bool)
	Categories() []types.Category
}

// Service signs administrators in
type Service struct {
	client *remote.Client
	store  Store
	state  State
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewService creates the admin service
func NewService(client *remote.Client, store Store, state State, log *zap.SugaredLogger) *Service {
	return &Service{client: client, store: store, state: state, logger: log, now: time.Now}
}

// Session is a signed-in administrator
type Session struct {
	svc     *Service
	client  *remote.Client
	session remote.Session
}

// SignIn authenticates with email and password and checks the admin profile
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.client.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	authed := s.client.WithSession(sess)
	ok, err := authed.IsAdmin(ctx, sess.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "check admin profile")
	}
	if !ok {
		s.logger.Warnw("Sign-in without admin profile", logger.FieldUserID, sess.UserID)
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrForbidden, "user %s is not an admin", sess.UserID),
			NotAdminHint,
		)
	}
	s.logger.Infow("Admin signed in", logger.FieldUserID, sess.UserID)
	return &Session{svc: s, client: authed, session: sess}, nil
}

// Email returns the signed-in address
func (a *Session) Email() string {
	return a.session.Email
}

func (a *Session) check() error {
	if a.session.Expired(a.svc.now()) {
		return errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "admin session expired"),
			"Your session has expired. Please sign in again.",
		)
	}
	return nil
}

// validateBusiness checks field rules and that the category exists
func (a *Session) validateBusiness(b types.Business) error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	cats := a.svc.state.Categories()
	if len(cats) == 0 {
		return nil
	}
	for _, c := range cats {
		if c.ID == b.Category {
			return nil
		}
	}
	return errors.WithHint(
		errors.NewInvalidRequestError("unknown category %q", b.Category),
		"Choose one of the existing categories.",
	)
}

func clean(b types.Business) types.Business {
	b.ShopName = strings.TrimSpace(b.ShopName)
	b.OwnerName = strings.TrimSpace(b.OwnerName)
	b.ContactNumber = strings.TrimSpace(b.ContactNumber)
	b.ContactNumber = strings.TrimPrefix(b.ContactNumber, "+91")
	b.Address = util.Optional(util.Deref(b.Address))
	b.OpeningHours = util.Optional(util.Deref(b.OpeningHours))
	return types.NormalizeBusiness(b)
}

// Add creates a listing. A missing id is generated.
func (a *Session) Add(ctx context.Context, b types.Business) (types.Business, error) {
	if err := a.check(); err != nil {
		return types.Business{}, err
	}
	b = clean(b)
	if err := a.validateBusiness(b); err != nil {
		return types.Business{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	saved, err := a.client.CreateBusiness(ctx, b)
	if err != nil {
		return types.Business{}, withSaveHint(err)
	}
	a.svc.apply(ctx, types.ChangeInsert, saved)
	a.svc.logger.Infow("Business added", logger.FieldBusinessID, saved.ID)
	return saved, nil
}

// Update saves changes to an existing listing
func (a *Session) Update(ctx context.Context, b types.Business) (types.Business, error) {
	if err := a.check(); err != nil {
		return types.Business{}, err
	}
	if b.ID == "" {
		return types.Business{}, errors.NewInvalidRequestError("update needs a business id")
	}
	b = clean(b)
	if err := a.validateBusiness(b); err != nil {
		return types.Business{}, err
	}

	saved, err := a.client.UpdateBusiness(ctx, b)
	if err != nil {
		return types.Business{}, withSaveHint(err)
	}
	a.svc.apply(ctx, types.ChangeUpdate, saved)
	a.svc.logger.Infow("Business updated", logger.FieldBusinessID, saved.ID)
	return saved, nil
}

// Delete removes a listing
func (a *Session) Delete(ctx context.Context, id string) error {
	if err := a.check(); err != nil {
		return err
	}
	if err := a.client.DeleteBusiness(ctx, id); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.WithHint(err, "The business no longer exists.")
		}
		return withSaveHint(err)
	}
	a.svc.apply(ctx, types.ChangeDelete, types.Business{ID: id})
	a.svc.logger.Infow("Business deleted", logger.FieldBusinessID, id)
	return nil
}

// ImportFailure is one seed entry that could not be added
type ImportFailure struct {
	Index    int
	ShopName string
	Err      error
}

// ImportReport summarizes a bulk import
type ImportReport struct {
	Added    []types.Business
	Failures []ImportFailure
}

// Import adds every business of seed, continuing past individual failures.
// It stops early only when ctx is done or the session is no longer valid.
func (a *Session) Import(ctx context.Context, seed directory.Seed) (ImportReport, error) {
	report := ImportReport{Added: []types.Business{}, Failures: []ImportFailure{}}
	for i, b := range seed.Businesses {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "import interrupted")
		}
		saved, err := a.Add(ctx, b)
		if err != nil {
			if errors.IsAny(err, errors.ErrUnauthorized, errors.ErrForbidden) {
				return report, err
			}
			report.Failures = append(report.Failures, ImportFailure{Index: i, ShopName: b.ShopName, Err: err})
			continue
		}
		report.Added = append(report.Added, saved)
	}
	a.svc.logger.Infow("Import finished",
		logger.FieldCount, len(report.Added),
		"failed", len(report.Failures),
	)
	return report, nil
}

func withSaveHint(err error) error {
	if len(errors.GetAllHints(err)) > 0 {
		return err
	}
	if errors.Is(err, errors.ErrForbidden) {
		return errors.WithHint(err, NotAdminHint)
	}
	return errors.WithHint(err, "Could not save. Please try again.")
}

// apply patches the saved record into memory and the cache
func (s *Service) apply(ctx context.Context, typ types.ChangeType, b types.Business) {
	ev := types.ChangeEvent{
		Table:           types.TableBusinesses,
		Type:            typ,
		ID:              b.ID,
		CommitTimestamp: b.UpdatedAt,
	}
	if typ != types.ChangeDelete {
		ev.Business = &b
	}
	s.state.Apply(ev)
	if typ != types.ChangeDelete {
		if merged, ok := s.state.Lookup(b.ID); ok {
			ev.Business = &merged
		}
	}
	if err := s.store.ApplyChange(ctx, ev); err != nil && !errors.Is(err, errors.ErrStorageUnavailable) {
		s.logger.Warnw("Saved business not cached", logger.FieldBusinessID, b.ID, logger.FieldError, err)
	}
}
