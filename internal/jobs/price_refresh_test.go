package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwnerLister struct {
	owners []string
	err    error
}

func (f *fakeOwnerLister) ListOwners() ([]string, error) {
	return f.owners, f.err
}

type fakeUpdater struct {
	failFor map[string]bool
	seen    []string
}

func (f *fakeUpdater) UpdatePrices(_ context.Context, ownerID string) (int, time.Duration, error) {
	f.seen = append(f.seen, ownerID)
	if f.failFor[ownerID] {
		return 0, 0, errors.New("resolver unavailable")
	}
	return 2, time.Millisecond, nil
}

func newTestJob(owners *fakeOwnerLister, updater *fakeUpdater) *PriceRefreshJob {
	return NewPriceRefreshJob(owners, updater, time.Minute, zerolog.Nop())
}

func TestRunRefreshesEveryOwner(t *testing.T) {
	updater := &fakeUpdater{}
	job := newTestJob(&fakeOwnerLister{owners: []string{"a", "b"}}, updater)

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"a", "b"}, updater.seen)
}

func TestRunNoOwnersIsNoop(t *testing.T) {
	updater := &fakeUpdater{}
	job := newTestJob(&fakeOwnerLister{}, updater)

	require.NoError(t, job.Run())
	assert.Empty(t, updater.seen)
}

func TestRunPartialFailureSucceeds(t *testing.T) {
	updater := &fakeUpdater{failFor: map[string]bool{"a": true}}
	job := newTestJob(&fakeOwnerLister{owners: []string{"a", "b"}}, updater)

	require.NoError(t, job.Run())
	assert.Equal(t, []string{"a", "b"}, updater.seen, "one owner failing does not stop the rest")
}

func TestRunAllFailuresReturnsError(t *testing.T) {
	updater := &fakeUpdater{failFor: map[string]bool{"a": true, "b": true}}
	job := newTestJob(&fakeOwnerLister{owners: []string{"a", "b"}}, updater)

	assert.Error(t, job.Run())
}

func TestRunOwnerListError(t *testing.T) {
	job := newTestJob(&fakeOwnerLister{err: errors.New("db closed")}, &fakeUpdater{})
	assert.Error(t, job.Run())
}
