package io

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// FileInfo describes a file or directory.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	Mode    fs.FileMode
	IsDir   bool
	ModTime time.Time
}

// Glob emits the paths matching pattern, in lexical order. A malformed
// pattern fails the stream.
func Glob(pattern string) core.Publisher[string] {
	return core.Pull(func(context.Context) (core.PullFunc[string], func()) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return failed[string](err), nil
		}
		return each(matches), nil
	})
}

// ListDir emits the immediate children of dir.
func ListDir(dir string) core.Publisher[string] {
	return core.Pull(func(context.Context) (core.PullFunc[string], func()) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return failed[string](err), nil
		}
		paths := make([]string, len(entries))
		for i, e := range entries {
			paths[i] = filepath.Join(dir, e.Name())
		}
		return each(paths), nil
	})
}

// Walk emits root and every path below it, depth first in lexical order.
// Directories are read one at a time as demand reaches them.
func Walk(root string) core.Publisher[string] {
	return walk(root, func(fs.DirEntry) bool { return true })
}

// WalkFiles is Walk restricted to regular files.
func WalkFiles(root string) core.Publisher[string] {
	return walk(root, func(e fs.DirEntry) bool { return e.Type().IsRegular() })
}

// WalkDirs is Walk restricted to directories.
func WalkDirs(root string) core.Publisher[string] {
	return walk(root, func(e fs.DirEntry) bool { return e.IsDir() })
}

type walkEntry struct {
	path  string
	entry fs.DirEntry
}

func walk(root string, keep func(fs.DirEntry) bool) core.Publisher[string] {
	return core.Pull(func(context.Context) (core.PullFunc[string], func()) {
		info, err := os.Lstat(root)
		if err != nil {
			return failed[string](err), nil
		}
		stack := []walkEntry{{path: root, entry: fs.FileInfoToDirEntry(info)}}
		return func() (string, bool, error) {
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.entry.IsDir() {
					children, err := os.ReadDir(top.path)
					if err != nil {
						return "", false, err
					}
					for i := len(children) - 1; i >= 0; i-- {
						stack = append(stack, walkEntry{filepath.Join(top.path, children[i].Name()), children[i]})
					}
				}
				if keep(top.entry) {
					return top.path, true, nil
				}
			}
			return "", false, nil
		}, nil
	})
}

// MatchBase passes on the paths whose base name matches pattern. A
// malformed pattern fails the stream on the first path.
func MatchBase(pattern string) core.Transformer[string, string] {
	return core.Lift[string, string](func(ctx context.Context, down core.Subscriber[string]) core.Subscriber[string] {
		o := core.NewOperator[string, string](ctx, down)
		o.Next = func(path string) {
			ok, err := filepath.Match(pattern, filepath.Base(path))
			switch {
			case err != nil:
				o.Fail(err)
			case ok:
				o.Emit(path)
			default:
				o.RequestUpstream(1)
			}
		}
		return o
	})
}

// Stat maps every path to its FileInfo. A path that cannot be stat'ed fails
// the stream.
func Stat() core.Transformer[string, FileInfo] {
	return core.Map(func(path string) (FileInfo, error) {
		info, err := os.Stat(path)
		if err != nil {
			return FileInfo{}, err
		}
		return FileInfo{
			Path:    path,
			Name:    info.Name(),
			Size:    info.Size(),
			Mode:    info.Mode(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}, nil
	})
}

func each[T any](items []T) core.PullFunc[T] {
	i := 0
	return func() (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		i++
		return items[i-1], true, nil
	}
}
