package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

func TestNewRetentionWorker(t *testing.T) {
	w := NewRetentionWorker(nil, &ArchiveConfig{WorkerInterval: 0}, nil, nil)
	assert.Equal(t, 24*time.Hour, w.interval)

	w = NewRetentionWorker(nil, nil, nil, nil)
	assert.Equal(t, DefaultArchiveConfig(), w.cfg)
}

func TestRetentionWorker_DisabledReturnsImmediately(t *testing.T) {
	m, _ := newTestManager(t)
	w := NewRetentionWorker(m, DefaultArchiveConfig(), nil, nil)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker did not return")
	}
}

func TestRetentionWorker_StopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t)
	cfg := DefaultArchiveConfig()
	cfg.WorkerEnabled = true
	cfg.WorkerInterval = time.Hour
	w := NewRetentionWorker(m, cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetentionWorker_RunOnce(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()
	seedLive(t, repo, "90000000001", pallet.StatusDestroyed, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "")
	seedArchive(t, repo, "90000000002", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))

	dir := t.TempDir()
	w := NewRetentionWorker(m, DefaultArchiveConfig(), FileSink{Dir: dir}, nil)
	w.RunOnce(ctx)

	live, err := repo.Get(ctx, "90000000001")
	require.NoError(t, err)
	assert.Nil(t, live)
	archived, err := repo.GetArchive(ctx, "90000000001")
	require.NoError(t, err)
	assert.NotNil(t, archived)

	expired, err := repo.GetArchive(ctx, "90000000002")
	require.NoError(t, err)
	assert.Nil(t, expired)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
