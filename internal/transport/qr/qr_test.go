package qr

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learner-progress-service/internal/domain"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestRendererPNG(t *testing.T) {
	r := NewRenderer(2800)

	png, err := r.PNG(`{"v":1,"ts":1767225600000,"progress":{}}`)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngSignature))
}

func TestRendererFitsMaxPayload(t *testing.T) {
	r := NewRenderer(2800)

	png, err := r.PNG(strings.Repeat("a", 2800))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngSignature))
}

func TestRendererRejectsOversizedPayload(t *testing.T) {
	r := NewRenderer(10)

	_, err := r.PNG(strings.Repeat("x", 11))
	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 1, capErr.Overage())

	_, err = r.PNG("")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func newTestScanner(handle HandleFunc) *Scanner {
	return NewScanner(handle, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScannerSingleActiveSession(t *testing.T) {
	var got []string
	s := newTestScanner(func(_ context.Context, text string) error {
		got = append(got, text)
		return nil
	})

	first := s.Start()
	second := s.Start()
	require.NotEqual(t, first.ID, second.ID)

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	err := s.Submit(context.Background(), first.ID, "stale")
	assert.True(t, errors.Is(err, ErrNoActiveScan))

	require.NoError(t, s.Submit(context.Background(), second.ID, "payload"))
	assert.Equal(t, []string{"payload"}, got)

	_, ok = s.Active()
	assert.False(t, ok, "scan must end after an accepted result")
}

func TestScannerKeepsSessionOnRejectedResult(t *testing.T) {
	s := newTestScanner(func(context.Context, string) error {
		return domain.ErrInvalidJSON
	})
	session := s.Start()

	err := s.Submit(context.Background(), session.ID, "garbage")
	assert.True(t, errors.Is(err, domain.ErrInvalidJSON))

	_, ok := s.Active()
	assert.True(t, ok)

	assert.True(t, s.Stop(session.ID))
	assert.False(t, s.Stop(session.ID))
}
