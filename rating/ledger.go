package rating

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/jawala/errors"
	"github.com/teranos/jawala/logger"
)

// Metadata keys, stored under the cache's local namespace
const (
	keyDeviceID = "device_id"
	keyRated    = "rated_businesses"
)

// Meta is the device-local key/value storage the ledger persists to
type Meta interface {
	Meta(ctx context.Context, key string) (string, bool)
	SetMeta(ctx context.Context, key, value string) error
}

// Ledger keeps this device's rating identity: its device id and the score it
// gave each business. It is loaded lazily and safe for concurrent use.
// Persistence failures leave the in-memory values in place.
type Ledger struct {
	meta   Meta
	logger *zap.SugaredLogger

	mu       sync.Mutex
	loaded   bool
	deviceID string
	rated    map[string]int
}

// NewLedger creates a ledger backed by meta
func NewLedger(meta Meta, log *zap.SugaredLogger) *Ledger {
	return &Ledger{meta: meta, logger: log}
}

func (l *Ledger) load(ctx context.Context) {
	if l.loaded {
		return
	}
	l.loaded = true
	l.rated = make(map[string]int)

	if id, ok := l.meta.Meta(ctx, keyDeviceID); ok && id != "" {
		l.deviceID = id
	} else {
		l.deviceID = uuid.NewString()
		if err := l.meta.SetMeta(ctx, keyDeviceID, l.deviceID); err != nil {
			l.logger.Warnw("Device id not persisted, ratings from this session may not be recognized later",
				logger.FieldError, err)
		}
	}

	if raw, ok := l.meta.Meta(ctx, keyRated); ok {
		if err := json.Unmarshal([]byte(raw), &l.rated); err != nil {
			l.logger.Warnw("Discarding unreadable rating markers", logger.FieldError, err)
			l.rated = make(map[string]int)
		}
		if l.rated == nil {
			l.rated = make(map[string]int)
		}
	}
}

// DeviceID returns the stable identifier of this device, generating one on
// first use
func (l *Ledger) DeviceID(ctx context.Context) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	return l.deviceID
}

// Marker returns the score this device gave businessID
func (l *Ledger) Marker(ctx context.Context, businessID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	score, ok := l.rated[businessID]
	return score, ok
}

// Mark records that this device rated businessID with score
func (l *Ledger) Mark(ctx context.Context, businessID string, score int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	if prev, ok := l.rated[businessID]; ok && prev == score {
		return nil
	}
	l.rated[businessID] = score
	return l.persist(ctx)
}

// Unmark forgets the marker for businessID
func (l *Ledger) Unmark(ctx context.Context, businessID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	if _, ok := l.rated[businessID]; !ok {
		return nil
	}
	delete(l.rated, businessID)
	return l.persist(ctx)
}

// Rated returns a copy of every marker
func (l *Ledger) Rated(ctx context.Context) map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load(ctx)
	out := make(map[string]int, len(l.rated))
	for k, v := range l.rated {
		out[k] = v
	}
	return out
}

func (l *Ledger) persist(ctx context.Context) error {
	raw, err := json.Marshal(l.rated)
	if err != nil {
		return errors.Wrap(err, "encode rating markers")
	}
	return l.meta.SetMeta(ctx, keyRated, string(raw))
}

// ValidateUserName trims name and requires at least two characters
func ValidateUserName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < 2 {
		return "", errors.WithHint(
			errors.NewInvalidRequestError("display name %q is too short", trimmed),
			"Please enter a name with at least 2 characters.",
		)
	}
	return trimmed, nil
}
