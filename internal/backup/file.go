package backup

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/validate"
)

// FileVersion is written into every export file.
const FileVersion = "2.0"

// ExportDocument is the full, unslimmed export file.
type ExportDocument struct {
	Version       string                           `json:"version"`
	ExportedAt    time.Time                        `json:"exportedAt"`
	ExportID      string                           `json:"exportId"`
	UserProgress  domain.UserProgress              `json:"userProgress"`
	ModuleMastery map[string]domain.ModuleProgress `json:"moduleMastery"`
}

type importEnvelope struct {
	Version      string          `json:"version" validate:"required,oneof=1.0 1.1 2.0"`
	UserProgress json.RawMessage `json:"userProgress" validate:"required"`
}

var envelopeValidator = validator.New()

// ExportFile renders the store as an indented export document.
func (c *Codec) ExportFile(store domain.Store) ([]byte, error) {
	canonical, err := c.Canonical(store)
	if err != nil {
		return nil, err
	}
	doc := ExportDocument{
		Version:       FileVersion,
		ExportedAt:    c.now().UTC(),
		ExportID:      uuid.NewString(),
		UserProgress:  canonical.UserProgress,
		ModuleMastery: canonical.Mastery,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal export file")
	}
	return raw, nil
}

// ImportFile accepts export files from every released version. The
// userProgress key is mandatory; module mastery is applied when present.
func (c *Codec) ImportFile(data []byte) (Restored, error) {
	var env importEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrInvalidJSON, Detail: err.Error()}
	}
	if err := envelopeValidator.Struct(env); err != nil {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrUnsupportedFile, Detail: err.Error()}
	}

	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrInvalidJSON, Detail: err.Error()}
	}

	rawUser, ok := root["userProgress"].(map[string]any)
	if !ok {
		return Restored{}, &domain.DecodeError{Reason: domain.ErrUnsupportedFile, Detail: "userProgress is not an object"}
	}
	up := c.validator.UserProgress(rawUser)
	out := Restored{UserProgress: &up, Timestamp: c.now().UTC()}
	if ts := c.validator.Timestamp(root["exportedAt"]); ts != nil {
		out.Timestamp = *ts
	}
	if raw, ok := validate.Pick(root, "moduleMastery", "mastery").(map[string]any); ok {
		if m := c.validator.Mastery(raw); len(m) > 0 {
			out.Mastery = m
		}
	}
	return out, nil
}
