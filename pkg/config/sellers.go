package config

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/go-pkgz/lgr"
)

// SellerSet is an immutable set of seller ids loaded from a list file
type SellerSet map[string]struct{}

// NewSellerSet makes a set of the given ids
func NewSellerSet(ids ...string) SellerSet {
	res := SellerSet{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			res[id] = struct{}{}
		}
	}
	return res
}

// Has reports whether the id is in the set, empty ids are never members
func (s SellerSet) Has(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

// LoadSellerSet reads a seller list, one id per line, "#" lines are comments.
// A missing or unreadable file gives an empty set.
func LoadSellerSet(path string) SellerSet {
	if path == "" {
		return SellerSet{}
	}
	fh, err := os.Open(path) //nolint:gosec // path comes from config
	if errors.Is(err, fs.ErrNotExist) {
		lgr.Printf("[DEBUG] seller list %s not found, using empty list", path)
		return SellerSet{}
	}
	if err != nil {
		lgr.Printf("[WARN] can't open seller list %s, using empty list: %v", path, err)
		return SellerSet{}
	}
	defer fh.Close()

	res := SellerSet{}
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		lgr.Printf("[WARN] failed to read seller list %s: %v", path, err)
	}
	lgr.Printf("[DEBUG] loaded %d sellers from %s", len(res), path)
	return res
}
