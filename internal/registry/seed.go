package registry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"RefreshSentinel/internal/model"
)

// ReadSymbols parses one symbol per line, skipping blanks and # comments.
// Duplicates are dropped, first occurrence wins.
func ReadSymbols(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := model.NormalizeSymbol(line)
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, sc.Err()
}

// LoadSymbolsFile reads a symbols file from disk.
func LoadSymbolsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()
	return ReadSymbols(f)
}

// Seed creates every symbol not yet in the store with the given base priority.
// Existing symbols are left untouched. It returns how many were created.
func Seed(ctx context.Context, store Store, symbols []string, basePriority int) (int, error) {
	created := 0
	for _, sym := range symbols {
		err := store.Create(ctx, model.NewSymbolState(sym, basePriority))
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", sym, err)
		}
		created++
	}
	return created, nil
}
