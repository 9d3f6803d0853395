package serv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestQueryWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	qdir := filepath.Join(dir, "queries")
	require.NoError(t, os.MkdirAll(qdir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(qdir, "first.yaml"), []byte("collection: members\n"), 0o644))

	conf, err := NewConfig("database:\n  type: memory\n", "yaml")
	require.NoError(t, err)
	conf.ConfigPath = dir

	s, err := NewService(context.Background(), conf,
		OptionSetFS(afero.NewOsFs()),
		OptionSetLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, s.Queries())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.initQueryWatcher(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(qdir, "second.yaml"), []byte("collection: posts\n"), 0o644))
	require.Eventually(t, func() bool {
		_, err := s.Query("second")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	// a broken file keeps the previous set
	require.NoError(t, os.WriteFile(filepath.Join(qdir, "third.yaml"), []byte("filters: [\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.ElementsMatch(t, []string{"first", "second"}, s.Queries())
}

func TestQueryWatcherOffInProduction(t *testing.T) {
	conf, err := NewConfig("production: true\ndatabase:\n  type: memory\n", "yaml")
	require.NoError(t, err)
	conf.ConfigPath = t.TempDir()

	s, err := NewService(context.Background(), conf,
		OptionSetFS(afero.NewMemMapFs()),
		OptionSetLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.NoError(t, s.initQueryWatcher(context.Background()))
}
