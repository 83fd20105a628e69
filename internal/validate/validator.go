// Package validate turns untrusted decoded JSON (imported files, backup
// payloads, legacy storage shapes) into progress values that satisfy every
// invariant. It never fails: fields that do not type-check or fall outside
// their bounds fall back to defaults, are clamped, or are truncated.
package validate

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"learner-progress-service/internal/domain"
)

// Limits bounds every collection and scalar the validator copies over.
type Limits struct {
	MaxArrayItems  int
	MaxStringLen   int
	MaxIDLen       int
	MaxModules     int
	MaxNoteKeys    int
	MaxAnswerIndex int
	MaxTimeSpent   int
	EarliestTime   time.Time
	FutureSkew     time.Duration
}

// DefaultLimits are generous enough for real learners and small enough to
// keep a hostile import from ballooning memory or storage.
func DefaultLimits() Limits {
	return Limits{
		MaxArrayItems:  200,
		MaxStringLen:   5000,
		MaxIDLen:       128,
		MaxModules:     200,
		MaxNoteKeys:    500,
		MaxAnswerIndex: 50,
		MaxTimeSpent:   10 * 365 * 24 * 3600,
		EarliestTime:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		FutureSkew:     365 * 24 * time.Hour,
	}
}

// Validator applies Limits relative to a clock.
type Validator struct {
	limits Limits
	now    func() time.Time
}

// New returns a validator with default limits and the wall clock.
func New() *Validator {
	return NewWithClock(DefaultLimits(), time.Now)
}

// NewWithClock allows deterministic timestamp bounds in tests.
func NewWithClock(limits Limits, now func() time.Time) *Validator {
	return &Validator{limits: limits, now: now}
}

// Limits returns the bounds in use.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Mastery validates a map of module id to module progress. Non-object
// input yields an empty map; invalid ids and non-object entries are dropped.
func (v *Validator) Mastery(raw any) map[string]domain.ModuleProgress {
	out := map[string]domain.ModuleProgress{}
	obj, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, id := range keys {
		if len(out) >= v.limits.MaxModules {
			break
		}
		if !v.IsID(id) {
			continue
		}
		if _, ok := obj[id].(map[string]any); !ok {
			continue
		}
		out[id] = v.ModuleMastery(obj[id])
	}
	return out
}

// ModuleMastery validates a single module record.
func (v *Validator) ModuleMastery(raw any) domain.ModuleProgress {
	mp := domain.NewModuleProgress()
	obj, ok := raw.(map[string]any)
	if !ok {
		return mp
	}

	mp.Unlocked = v.boolean(obj["unlocked"])
	mp.Started = v.boolean(obj["started"])
	mp.Completed = v.boolean(obj["completed"])
	mp.CurrentStep = v.intIn(obj["currentStep"], 0, len(domain.CanonicalSteps)-1, 0)

	if pre, ok := obj["preTest"].(map[string]any); ok {
		mp.PreTest.Completed = v.boolean(pre["completed"])
		mp.PreTest.Score = v.score(pre["score"])
		mp.PreTest.Answers = v.answers(pre["answers"])
	}
	if th, ok := obj["theory"].(map[string]any); ok {
		mp.Theory.Completed = v.boolean(th["completed"])
		mp.Theory.SectionsRead = v.ids(th["sectionsRead"])
	}
	if jk, ok := Pick(obj, jokeAliases...).(map[string]any); ok {
		mp.Jokes.Analyzed = v.ids(jk["analyzed"])
	}
	if act, ok := obj["activities"].(map[string]any); ok {
		switch c := act["completed"].(type) {
		case []any:
			mp.Activities.Completed = v.ids(c)
		case bool:
			// older records kept a single flag under the same key
			mp.Activities.CompletedFlag = c
		}
		if flag, ok := act["completedFlag"].(bool); ok {
			mp.Activities.CompletedFlag = flag
		}
	}
	if post, ok := obj["postTest"].(map[string]any); ok {
		mp.PostTest.Completed = v.boolean(post["completed"])
		mp.PostTest.Score = v.score(post["score"])
		mp.PostTest.Answers = v.answers(post["answers"])
		mp.PostTest.CompletedAt = v.Timestamp(Pick(post, "completedAt", "completedDate"))
	}
	if refl, ok := obj["reflection"].(map[string]any); ok {
		mp.Reflection.Completed = v.boolean(refl["completed"])
		mp.Reflection.Responses = v.Responses(Pick(refl, "responses", "response"))
	}

	mp.MasteryScore = v.intIn(obj["masteryScore"], 0, 100, 0)
	mp.ProgressScore = v.intIn(obj["progressScore"], 0, 100, 0)
	mp.MasteryAchieved = v.boolean(obj["masteryAchieved"]) && mp.MasteryScore >= domain.MasteryThreshold
	mp.TimeSpent = v.intIn(obj["timeSpent"], 0, v.limits.MaxTimeSpent, 0)
	mp.LastAccessed = v.Timestamp(obj["lastAccessed"])
	mp.CompletionDate = v.Timestamp(obj["completionDate"])
	mp.LastReviewDate = v.Timestamp(Pick(obj, "lastReviewDate", "lastReview"))
	return mp
}

// UserProgress validates the app-wide collections.
func (v *Validator) UserProgress(raw any) domain.UserProgress {
	up := domain.NewUserProgress()
	obj, ok := raw.(map[string]any)
	if !ok {
		return up
	}
	up.Read = v.ids(Pick(obj, "read", "readItems"))
	up.Favorites = v.ids(Pick(obj, "favorites", "favourites"))
	up.Notes = v.notes(obj["notes"])
	if pl, ok := obj["placement"].(map[string]any); ok {
		up.Placement.Completed = v.boolean(pl["completed"])
		up.Placement.Score = v.score(pl["score"])
		if rec, ok := pl["recommendedModule"].(string); ok && v.IsID(rec) {
			up.Placement.RecommendedModule = &rec
		}
		up.Placement.DateTaken = v.Timestamp(pl["dateTaken"])
	}
	return up
}

// Responses validates any of the three reflection shapes.
func (v *Validator) Responses(raw any) domain.ReflectionResponses {
	switch r := raw.(type) {
	case string:
		return domain.TextResponses(v.Text(r, v.limits.MaxStringLen))
	case []any:
		items := make([]string, 0, len(r))
		for _, item := range r {
			if len(items) >= v.limits.MaxArrayItems {
				break
			}
			if s, ok := item.(string); ok {
				items = append(items, v.Text(s, v.limits.MaxStringLen))
			}
		}
		return domain.ListResponses(items...)
	case map[string]any:
		return domain.FieldResponses(v.stringMap(r, v.limits.MaxArrayItems))
	default:
		return domain.TextResponses("")
	}
}

// Timestamp accepts epoch milliseconds or an RFC 3339 string and drops
// anything outside [EarliestTime, now+FutureSkew].
func (v *Validator) Timestamp(raw any) *time.Time {
	var t time.Time
	switch r := raw.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, r)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		ms, ok := Number(raw)
		if !ok || math.Abs(ms) > maxEpochMillis {
			return nil
		}
		t = time.UnixMilli(int64(ms))
	}
	t = time.UnixMilli(t.UnixMilli()).UTC()
	if !v.TimeInRange(t) {
		return nil
	}
	return &t
}

// TimeInRange reports whether t is plausible for a learner record.
func (v *Validator) TimeInRange(t time.Time) bool {
	return !t.Before(v.limits.EarliestTime) && !t.After(v.now().Add(v.limits.FutureSkew))
}

// IsID reports whether s is usable as an opaque identifier.
func (v *Validator) IsID(s string) bool {
	if s == "" || len(s) > v.limits.MaxIDLen || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Text truncates s to at most max runes and drops invalid UTF-8.
func (v *Validator) Text(s string, max int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max < 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Number extracts a finite number from a decoded JSON value.
func Number(raw any) (float64, bool) {
	var f float64
	switch n := raw.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Pick returns the first present value among aliases, in priority order.
func Pick(obj map[string]any, aliases ...string) any {
	for _, key := range aliases {
		if val, ok := obj[key]; ok && val != nil {
			return val
		}
	}
	return nil
}

var jokeAliases = []string{"jokes", "examples"}

// maxEpochMillis keeps float-to-int64 conversion well inside range.
const maxEpochMillis = 1e15

func (v *Validator) boolean(raw any) bool {
	b, _ := raw.(bool)
	return b
}

func (v *Validator) intIn(raw any, lo, hi, fallback int) int {
	f, ok := Number(raw)
	if !ok {
		return fallback
	}
	return roundClamp(f, lo, hi)
}

func (v *Validator) score(raw any) *int {
	f, ok := Number(raw)
	if !ok {
		return nil
	}
	s := roundClamp(f, 0, 100)
	return &s
}

func (v *Validator) answers(raw any) []int {
	out := []int{}
	arr, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, item := range arr {
		if len(out) >= v.limits.MaxArrayItems {
			break
		}
		f, ok := Number(item)
		if !ok {
			out = append(out, domain.NoAnswer)
			continue
		}
		out = append(out, roundClamp(f, domain.NoAnswer, v.limits.MaxAnswerIndex))
	}
	return out
}

// ids keeps unique, valid string identifiers in their original order.
func (v *Validator) ids(raw any) []string {
	out := []string{}
	arr, ok := raw.([]any)
	if !ok {
		return out
	}
	seen := make(map[string]struct{}, len(arr))
	for _, item := range arr {
		if len(out) >= v.limits.MaxArrayItems {
			break
		}
		s, ok := item.(string)
		if !ok || !v.IsID(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (v *Validator) notes(raw any) map[string]string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	return v.stringMap(obj, v.limits.MaxNoteKeys)
}

func (v *Validator) stringMap(obj map[string]any, maxKeys int) map[string]string {
	out := map[string]string{}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(out) >= maxKeys {
			break
		}
		s, ok := obj[k].(string)
		if !ok || !v.IsID(k) {
			continue
		}
		out[k] = v.Text(s, v.limits.MaxStringLen)
	}
	return out
}

// roundClamp clamps before converting so huge floats never overflow int.
func roundClamp(f float64, lo, hi int) int {
	f = math.Round(f)
	if f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}
