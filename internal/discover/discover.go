// Package discover enumerates every directory under a set of roots.
//
// Discovery is the serial first phase of a scan: it produces the full,
// deterministic list of directories the parallel walker will then list.
// Symlinked directories are never followed, so symlink cycles cannot
// cause infinite traversal, and excluded subtrees are pruned before
// descent.
package discover

import (
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/logging"
)

// Discover returns every non-pruned directory under the given roots,
// each root included, sorted lexicographically. A root that does not
// exist is logged and skipped; other roots are still discovered.
func Discover(rootPaths []string, excl exclude.Config, logger logging.Logger) []string {
	var (
		mu   sync.Mutex
		dirs []string
	)

	conf := fastwalk.Config{Follow: false}

	for _, root := range rootPaths {
		if _, err := os.Lstat(root); err != nil {
			logger.Warn("root path does not exist, skipping", "path", root, "error", err)
			continue
		}

		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries surface again during listing;
				// discovery just moves on.
				logger.Warn("discovery error", "path", path, "error", err)
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && excl.ShouldExclude(path) {
				logger.Debug("pruning excluded subtree", "path", path)
				return fs.SkipDir
			}
			mu.Lock()
			dirs = append(dirs, path)
			mu.Unlock()
			return nil
		})
		if err != nil {
			logger.Warn("discovery failed for root", "path", root, "error", err)
		}
	}

	// fastwalk visits in parallel; sort for a deterministic result.
	sort.Strings(dirs)
	return dirs
}
