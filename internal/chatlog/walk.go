package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// metadataMarker prefixes the junk directories macOS zips into archives
// (__MACOSX). They hold resource forks, never conversation data.
const metadataMarker = "__"

// Walk enumerates every file under root, descending into subdirectories
// while skipping macOS-metadata directories, and returns a flat ordered
// list of absolute paths. The walk is depth-first over an explicit work
// stack rather than call recursion, so a deep or malformed tree cannot
// exhaust the stack; it completes before any parsing starts so file counts
// are known up front.
func Walk(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("chatlog: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("chatlog: root is not a directory: %s", root)
	}

	var files []string
	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("chatlog: read dir %s: %w", dir, err)
		}
		// Reverse order so the stack pops entries alphabetically.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })

		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			if e.IsDir() {
				if Excluded(e.Name()) {
					continue
				}
				stack = append(stack, p)
				continue
			}
			files = append(files, p)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Excluded reports whether a directory name is non-conversation junk that
// must not be descended into.
func Excluded(name string) bool {
	return strings.HasPrefix(name, metadataMarker)
}
