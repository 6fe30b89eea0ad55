package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireAndForgetSucceedsWithoutRequestFunc(t *testing.T) {
	f := &FireAndForget{}
	require.NoError(t, f.RequestArchive(context.Background(), "/lustre/a", 1))
}

func TestFireAndForgetPropagatesRequestError(t *testing.T) {
	f := &FireAndForget{Request: func(ctx context.Context, path string, id uint16) error {
		return errors.New("backend down")
	}}
	err := f.RequestArchive(context.Background(), "/lustre/a", 1)
	assert.Error(t, err)
}

func TestPollingReportsArchivedAfterDelay(t *testing.T) {
	calls := 0
	p := &Polling{
		Poll: func(ctx context.Context, path string) (bool, error) {
			calls++
			return calls >= 2, nil
		},
	}
	require.NoError(t, p.RequestArchive(context.Background(), "/lustre/a", 1))

	start := time.Now()
	archived, err := p.PollState(context.Background(), "/lustre/a")
	require.NoError(t, err)
	assert.False(t, archived)
	assert.GreaterOrEqual(t, time.Since(start), PollInterval)

	archived, err = p.PollState(context.Background(), "/lustre/a")
	require.NoError(t, err)
	assert.True(t, archived)
}

func TestPollingRespectsContextCancellation(t *testing.T) {
	p := &Polling{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.PollState(ctx, "/lustre/a")
	assert.Error(t, err)
}
