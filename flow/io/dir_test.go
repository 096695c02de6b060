package io

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

// tree creates root/a.txt, root/b.log, root/sub/c.txt and root/sub/deep/d.txt.
func tree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range []string{"a.txt", "b.log", "sub/c.txt", "sub/deep/d.txt"} {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(p), 0o644))
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestGlob(t *testing.T) {
	root := tree(t)
	got, err := core.Slice(context.Background(), Glob(filepath.Join(root, "*.txt")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, rel(t, root, got))

	_, err = core.Slice(context.Background(), Glob("["))
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}

func TestListDir(t *testing.T) {
	root := tree(t)
	got, err := core.Slice(context.Background(), ListDir(root))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.log", "sub"}, rel(t, root, got))
}

func TestWalk(t *testing.T) {
	root := tree(t)
	tests := []struct {
		name string
		pub  func(string) core.Publisher[string]
		want []string
	}{
		{"all", Walk, []string{".", "a.txt", "b.log", "sub", "sub/c.txt", "sub/deep", "sub/deep/d.txt"}},
		{"files", WalkFiles, []string{"a.txt", "b.log", "sub/c.txt", "sub/deep/d.txt"}},
		{"dirs", WalkDirs, []string{".", "sub", "sub/deep"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), tt.pub(root))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rel(t, root, got))
		})
	}
}

func TestWalk_FollowsDemand(t *testing.T) {
	root := tree(t)
	rec := flowtest.Subscribe(context.Background(), WalkFiles(root), 1)
	assert.Equal(t, []string{"a.txt"}, rel(t, root, rec.Values()))
	rec.Cancel()
	rec.AssertClean(t)
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := core.Slice(context.Background(), Walk(filepath.Join(t.TempDir(), "nope")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMatchBaseAndStat(t *testing.T) {
	root := tree(t)
	infos, err := core.Slice(context.Background(), Stat().Apply(MatchBase("*.txt").Apply(WalkFiles(root))))
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "a.txt", infos[0].Name)
	assert.Equal(t, int64(len("a.txt")), infos[0].Size)
	assert.False(t, infos[0].IsDir)
	assert.Equal(t, "d.txt", infos[2].Name)
}
