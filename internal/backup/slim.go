package backup

import (
	"sort"
	"time"

	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/validate"
)

// SlimLimits bound what survives slimming. Anything past them is dropped
// so the payload fits a QR code.
type SlimLimits struct {
	MaxAnswers  int
	MaxIDs      int
	MaxText     int
	MaxNoteKeys int
}

// DefaultSlimLimits keeps a typical ten-module learner well under 2800 bytes.
func DefaultSlimLimits() SlimLimits {
	return SlimLimits{
		MaxAnswers:  30,
		MaxIDs:      40,
		MaxText:     280,
		MaxNoteKeys: 20,
	}
}

// IsNonEmpty is the single emptiness rule used by every slimming path.
// Pointers count as present even when they point at zero: a score of 0 is
// information, a missing score is not.
func IsNonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []int:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	case map[string]string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case *int:
		return x != nil
	default:
		return true
	}
}

// object builds a JSON object that only keeps non-empty members.
type object map[string]any

func (o object) put(key string, v any) object {
	if IsNonEmpty(v) {
		o[key] = v
	}
	return o
}

// Slim reduces canonical progress to what is needed to resume correctly.
func Slim(store domain.Store, limits SlimLimits) (map[string]any, map[string]any) {
	mastery := object{}
	for _, id := range store.ModuleIDs() {
		mastery.put(id, map[string]any(slimModule(store.Mastery[id], limits)))
	}
	return mastery, slimUserProgress(store.UserProgress, limits)
}

func slimModule(mp domain.ModuleProgress, l SlimLimits) object {
	out := object{}
	out.put("unlocked", mp.Unlocked).
		put("started", mp.Started).
		put("completed", mp.Completed).
		put("currentStep", mp.CurrentStep)

	out.put("preTest", map[string]any(object{}.
		put("completed", mp.PreTest.Completed).
		put("score", mp.PreTest.Score).
		put("answers", headInts(mp.PreTest.Answers, l.MaxAnswers))))

	out.put("theory", map[string]any(object{}.
		put("completed", mp.Theory.Completed).
		put("sectionsRead", headStrings(mp.Theory.SectionsRead, l.MaxIDs))))

	out.put("jokes", map[string]any(object{}.
		put("analyzed", headStrings(mp.Jokes.Analyzed, l.MaxIDs))))

	out.put("activities", map[string]any(object{}.
		put("completed", headStrings(mp.Activities.Completed, l.MaxIDs)).
		put("completedFlag", mp.Activities.CompletedFlag)))

	out.put("postTest", map[string]any(object{}.
		put("completed", mp.PostTest.Completed).
		put("score", mp.PostTest.Score).
		put("answers", headInts(mp.PostTest.Answers, l.MaxAnswers)).
		put("completedAt", millis(mp.PostTest.CompletedAt))))

	out.put("reflection", map[string]any(object{}.
		put("completed", mp.Reflection.Completed).
		put("responses", slimResponses(mp.Reflection.Responses, l))))

	out.put("masteryScore", mp.MasteryScore).
		put("progressScore", mp.ProgressScore).
		put("masteryAchieved", mp.MasteryAchieved).
		put("timeSpent", mp.TimeSpent).
		put("lastAccessed", millis(mp.LastAccessed)).
		put("completionDate", millis(mp.CompletionDate)).
		put("lastReviewDate", millis(mp.LastReviewDate))
	return out
}

func slimResponses(r domain.ReflectionResponses, l SlimLimits) any {
	switch r.Kind {
	case domain.ResponseList:
		items := make([]string, 0, len(r.List))
		for _, s := range headStrings(r.List, l.MaxNoteKeys) {
			items = append(items, validate.Truncate(s, l.MaxText))
		}
		return items
	case domain.ResponseFields:
		return capStringMap(r.Fields, l.MaxNoteKeys, l.MaxText)
	default:
		return validate.Truncate(r.Text, l.MaxText)
	}
}

func slimUserProgress(up domain.UserProgress, l SlimLimits) map[string]any {
	out := object{}
	out.put("read", headStrings(up.Read, l.MaxIDs)).
		put("favorites", headStrings(up.Favorites, l.MaxIDs)).
		put("notes", capStringMap(up.Notes, l.MaxNoteKeys, l.MaxText))

	pl := object{}.
		put("completed", up.Placement.Completed).
		put("score", up.Placement.Score).
		put("dateTaken", millis(up.Placement.DateTaken))
	if up.Placement.RecommendedModule != nil {
		pl.put("recommendedModule", *up.Placement.RecommendedModule)
	}
	out.put("placement", map[string]any(pl))
	return out
}

// capStringMap keeps the first maxKeys keys in sorted order and truncates values.
func capStringMap(in map[string]string, maxKeys, maxText int) map[string]string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := map[string]string{}
	for _, k := range keys {
		if len(out) >= maxKeys {
			break
		}
		if v := validate.Truncate(in[k], maxText); v != "" {
			out[k] = v
		}
	}
	return out
}

func headInts(in []int, n int) []int {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func headStrings(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func millis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
