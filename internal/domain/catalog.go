package domain

import "fmt"

// ModuleDef is the static definition of a lesson module.
type ModuleDef struct {
	ID                 string   `yaml:"id" json:"id"`
	Title              string   `yaml:"title" json:"title"`
	Steps              []StepID `yaml:"steps" json:"steps"`
	RequiredJokes      int      `yaml:"required_jokes" json:"requiredJokes"`
	RequiredActivities int      `yaml:"required_activities" json:"requiredActivities"`
	PreTestKey         []int    `yaml:"pre_test_key" json:"preTestKey"`
	PostTestKey        []int    `yaml:"post_test_key" json:"postTestKey"`
}

// StepList returns the module's steps, defaulting to the canonical five.
func (d ModuleDef) StepList() []StepID {
	if len(d.Steps) == 0 {
		return CanonicalSteps
	}
	return d.Steps
}

// HasStep reports whether the module includes step.
func (d ModuleDef) HasStep(step StepID) bool {
	for _, s := range d.StepList() {
		if s == step {
			return true
		}
	}
	return false
}

// PostTestQuestions is the number of post-test questions.
func (d ModuleDef) PostTestQuestions() int {
	return len(d.PostTestKey)
}

// Validate checks that steps form a subsequence of CanonicalSteps.
func (d ModuleDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: module without id", ErrInvalidCatalog)
	}
	if d.RequiredJokes < 0 || d.RequiredActivities < 0 {
		return fmt.Errorf("%w: module %s has negative requirements", ErrInvalidCatalog, d.ID)
	}
	next := 0
	for _, step := range d.Steps {
		found := false
		for next < len(CanonicalSteps) {
			if CanonicalSteps[next] == step {
				found = true
				next++
				break
			}
			next++
		}
		if !found {
			return fmt.Errorf("%w: module %s has step %q out of order or unknown", ErrInvalidCatalog, d.ID, step)
		}
	}
	return nil
}

// Catalog is the ordered list of modules a learner works through.
type Catalog struct {
	Modules []ModuleDef `yaml:"modules" json:"modules"`
}

// Validate checks every module and rejects duplicate ids.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Modules))
	for _, m := range c.Modules {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate module id %s", ErrInvalidCatalog, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// Module looks up a definition by id.
func (c Catalog) Module(id string) (ModuleDef, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleDef{}, false
}

// IDs returns module ids in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c.Modules))
	for i, m := range c.Modules {
		ids[i] = m.ID
	}
	return ids
}
