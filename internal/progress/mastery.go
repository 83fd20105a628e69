package progress

import (
	"math"

	"learner-progress-service/internal/domain"
)

// Composite score weights. They sum to 100.
const (
	weightPreTest    = 10
	weightTheory     = 20
	weightJokes      = 30
	weightActivities = 20
	weightPostTest   = 15
	weightReflection = 5
)

// CompositeScore is the partial-completion indicator shown while a module
// is in flight. Every term is computed and rounded on its own.
func CompositeScore(def domain.ModuleDef, mp domain.ModuleProgress) int {
	score := 0
	if mp.PreTest.Completed {
		score += weightPreTest
	}
	if mp.Theory.Completed {
		score += weightTheory
	}
	score += ratioTerm(weightJokes, len(mp.Jokes.Analyzed), def.RequiredJokes)
	score += ratioTerm(weightActivities, len(mp.Activities.Completed), def.RequiredActivities)
	if mp.PostTest.Completed {
		score += weightPostTest
	}
	if mp.Reflection.Completed {
		score += weightReflection
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ratioTerm gives full weight when nothing is required and caps over-delivery.
func ratioTerm(weight, done, required int) int {
	if required <= 0 {
		return weight
	}
	ratio := float64(done) / float64(required)
	if ratio > 1 {
		ratio = 1
	}
	return int(math.Round(float64(weight) * ratio))
}

// MasteryAchieved reports whether a post-test percentage passes.
func MasteryAchieved(postTestScore int) bool {
	return postTestScore >= domain.MasteryThreshold
}

// Grade returns round(100*correct/total) for answers against key. An empty
// key grades as 100.
func Grade(key, answers []int) int {
	if len(key) == 0 {
		return 100
	}
	correct := 0
	for i, want := range key {
		if i < len(answers) && answers[i] == want {
			correct++
		}
	}
	return int(math.Round(100 * float64(correct) / float64(len(key))))
}

// ApplyPostTestMastery overwrites the canonical mastery score with the
// post-test percentage and derives MasteryAchieved from it.
func ApplyPostTestMastery(mp *domain.ModuleProgress) {
	score := 0
	if mp.PostTest.Score != nil {
		score = *mp.PostTest.Score
	}
	mp.MasteryScore = score
	mp.MasteryAchieved = MasteryAchieved(score)
}
