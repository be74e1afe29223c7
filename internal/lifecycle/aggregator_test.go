package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/interpctl/internal/interpreter"
)

func TestAggregatorOneEntryPerGroup(t *testing.T) {
	settings := &fakeSettings{list: []interpreter.Setting{
		{ID: "a", Group: "spark"},
		{ID: "b", Group: "python"},
		{ID: "c", Group: "spark"},
	}}
	prober := newFakeProber(map[string]bool{"spark": true, "python": false})
	got, err := NewAggregator(settings, prober).Statuses(context.Background(), alpha)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "c", got["spark"].Setting.ID, "later setting wins")
	assert.False(t, got["spark"].NotRunning)
	assert.True(t, got["python"].NotRunning)
	assert.Equal(t, 3, prober.Calls(), "one probe per setting")
}

func TestAggregatorEmptyAndErrors(t *testing.T) {
	got, err := NewAggregator(&fakeSettings{}, newFakeProber(nil)).Statuses(context.Background(), alpha)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewAggregator(&fakeSettings{listErr: errors.New("db gone")}, newFakeProber(nil)).Statuses(context.Background(), alpha)
	assert.ErrorContains(t, err, "db gone")
}
