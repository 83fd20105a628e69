// Package backup encodes learner progress into a compact versioned payload
// small enough for a QR code, and decodes such payloads back into validated
// progress. It also reads and writes the larger JSON export file.
package backup

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/validate"
)

// Version is the only payload version this build writes and reads.
const Version = 1

// DefaultMaxPayload is the usable byte capacity of the QR code we render.
const DefaultMaxPayload = 2800

var (
	masteryAliases      = []string{"mastery", "moduleMastery", "progress"}
	userProgressAliases = []string{"userProgress", "state", "user"}
)

// Restored is the validated result of a successful decode. Either half
// may be absent; at least one is present.
type Restored struct {
	Mastery      map[string]domain.ModuleProgress
	UserProgress *domain.UserProgress
	Timestamp    time.Time
}

// HasMastery reports whether the mastery half was usable.
func (r Restored) HasMastery() bool {
	return r.Mastery != nil
}

// Codec encodes and decodes backup payloads.
type Codec struct {
	MaxPayload int
	Limits     SlimLimits

	validator *validate.Validator
	now       func() time.Time
}

// NewCodec builds a codec. A non-positive maxPayload selects DefaultMaxPayload.
func NewCodec(v *validate.Validator, maxPayload int, now func() time.Time) *Codec {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{
		MaxPayload: maxPayload,
		Limits:     DefaultSlimLimits(),
		validator:  v,
		now:        now,
	}
}

type wrapper struct {
	V        int     `json:"v"`
	TS       int64   `json:"ts"`
	Progress payload `json:"progress"`
}

type payload struct {
	Mastery      map[string]any `json:"mastery,omitempty"`
	UserProgress map[string]any `json:"userProgress,omitempty"`
}

// Encode validates, slims and wraps the store. The result is compact JSON.
// A payload that does not fit MaxPayload yields a *domain.CapacityError.
func (c *Codec) Encode(store domain.Store) (string, error) {
	canonical, err := c.Canonical(store)
	if err != nil {
		return "", err
	}
	mastery, up := Slim(canonical, c.Limits)
	w := wrapper{
		V:        Version,
		TS:       c.now().UnixMilli(),
		Progress: payload{Mastery: mastery, UserProgress: up},
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", errors.Wrap(err, "marshal backup")
	}
	if len(raw) > c.MaxPayload {
		return "", &domain.CapacityError{Length: len(raw), Limit: c.MaxPayload}
	}
	return string(raw), nil
}

// Canonical runs the store through the same validator used on import, so
// whatever is encoded is something Decode would accept unchanged.
func (c *Codec) Canonical(store domain.Store) (domain.Store, error) {
	raw, err := json.Marshal(store)
	if err != nil {
		return domain.Store{}, errors.Wrap(err, "marshal store")
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return domain.Store{}, errors.Wrap(err, "unmarshal store")
	}
	return domain.Store{
		Mastery:      c.validator.Mastery(generic["moduleMastery"]),
		UserProgress: c.validator.UserProgress(generic["userProgress"]),
	}, nil
}

// Decode parses and validates a payload. It never returns partially
// trusted data: any envelope problem is a *domain.DecodeError.
func (c *Codec) Decode(text string) (Restored, error) {
	var root any
	if err := json.Unmarshal([]byte(text), &root); err != nil {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrInvalidJSON, Detail: err.Error()}
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrInvalidWrapper, Detail: "payload is not an object"}
	}

	v, ok := validate.Number(obj["v"])
	if !ok {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrInvalidWrapper, Detail: "missing version"}
	}
	if v != Version {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrUnsupportedVersion, Detail: formatVersion(v)}
	}

	ts, err := c.timestamp(obj["ts"])
	if err != nil {
		return Restored{}, err
	}

	container := obj
	if inner, ok := obj["progress"].(map[string]any); ok {
		container = inner
	}
	return c.restore(container, ts)
}

func (c *Codec) timestamp(raw any) (time.Time, error) {
	ms, ok := validate.Number(raw)
	if !ok {
		return time.Time{}, &domain.DecodeError{Reason: domain.ErrInvalidWrapper, Detail: "missing timestamp"}
	}
	if math.Abs(ms) > 1e15 {
		return time.Time{}, &domain.DecodeError{Reason: domain.ErrTimestampOutOfRange}
	}
	ts := time.UnixMilli(int64(ms)).UTC()
	if !c.validator.TimeInRange(ts) {
		return time.Time{}, &domain.DecodeError{Reason: domain.ErrTimestampOutOfRange, Detail: ts.Format(time.RFC3339)}
	}
	return ts, nil
}

// restore validates both halves independently. A half is usable when
// something survives validation; one usable half is enough.
func (c *Codec) restore(container map[string]any, ts time.Time) (Restored, error) {
	out := Restored{Timestamp: ts}
	if raw, ok := validate.Pick(container, masteryAliases...).(map[string]any); ok {
		if m := c.validator.Mastery(raw); len(m) > 0 {
			out.Mastery = m
		}
	}
	if raw, ok := validate.Pick(container, userProgressAliases...).(map[string]any); ok {
		if up := c.validator.UserProgress(raw); IsNonEmpty(slimUserProgress(up, c.Limits)) {
			out.UserProgress = &up
		}
	}
	if out.Mastery == nil && out.UserProgress == nil {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrNoUsableProgress}
	}
	return out, nil
}

func formatVersion(v float64) string {
	raw, _ := json.Marshal(v)
	return "v" + string(raw)
}
