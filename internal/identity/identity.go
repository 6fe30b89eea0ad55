// Package identity implements a read-only table of known client nodes,
// loaded once at startup from a text file.
package identity

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/GSI-HPC/fsqd/internal/fsqlog"
)

// Entry is one identity-map row. Immutable once loaded.
type Entry struct {
	NodeName   string
	ServerName string
	ArchiveID  uint16
	UID        uint32
	GID        uint32
	// Secret is an optional 6th column. It is parsed and stored only; the
	// CONNECT password is never compared against it.
	Secret string
}

// Map is the read-only, concurrency-safe-by-construction identity table:
// once Load returns, nothing mutates it, so lookups need no locking.
type Map struct {
	byNode map[string]Entry
}

// Load reads an identity map file: one entry per line, whitespace
// separated, `#` comments and blank lines ignored. Invalid lines are
// warned about and skipped. Duplicate node names: last-wins.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("identity: open %s: %w", path, err)
	}
	defer f.Close()

	m := &Map{byNode: make(map[string]Entry)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 && len(fields) != 6 {
			fsqlog.Warnf("identity: %s:%d: expected 5 or 6 fields, got %d; skipping", path, lineNo, len(fields))
			continue
		}
		archiveID, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			fsqlog.Warnf("identity: %s:%d: bad archive_id %q; skipping", path, lineNo, fields[2])
			continue
		}
		uid, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			fsqlog.Warnf("identity: %s:%d: bad uid %q; skipping", path, lineNo, fields[3])
			continue
		}
		gid, err := strconv.ParseUint(fields[4], 10, 32)
		if err != nil {
			fsqlog.Warnf("identity: %s:%d: bad gid %q; skipping", path, lineNo, fields[4])
			continue
		}
		entry := Entry{
			NodeName:   fields[0],
			ServerName: fields[1],
			ArchiveID:  uint16(archiveID),
			UID:        uint32(uid),
			GID:        uint32(gid),
		}
		if len(fields) == 6 {
			entry.Secret = fields[5]
		}
		m.byNode[entry.NodeName] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}
	return m, nil
}

// Lookup returns the entry for node, and whether it was found.
func (m *Map) Lookup(node string) (Entry, bool) {
	e, ok := m.byNode[node]
	return e, ok
}

// Len reports how many distinct nodes are in the map.
func (m *Map) Len() int { return len(m.byNode) }
