// Package rendercache persists decode results keyed by spore id, with a
// TTL and integrity check on read (spec §4.H).
package rendercache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sporeprotocol/dob-decoder-go/internal/dobtype"
)

// Cache is a directory of one file per spore id, each holding three
// newline-separated lines: rendered output, dob content JSON, expiration
// unix seconds (spec §3 Invariants).
type Cache struct {
	dir            string
	expirationSecs uint64 // 0 = never expire
}

// New builds a Cache rooted at dir. dir is created lazily on first write.
func New(dir string, expirationSecs uint64) *Cache {
	return &Cache{dir: dir, expirationSecs: expirationSecs}
}

func (c *Cache) path(sporeID string) string {
	return filepath.Join(c.dir, sporeID+".dob")
}

// Entry is one cached decode result.
type Entry struct {
	RenderedOutput string
	DobContent     json.RawMessage
	ExpirationUnix uint64
}

// Get reads the cache entry for sporeID. A missing file, a malformed
// file (fewer than two lines, or a dob-content line that fails to parse
// as JSON), or an expired entry are all treated as a cache miss: (nil,
// nil) is returned, never an error — the caller re-decodes.
func (c *Cache) Get(sporeID string, now time.Time) (*Entry, error) {
	f, err := os.Open(c.path(sporeID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	lines, err := readLines(f, 3)
	if err != nil {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, nil // DOBRenderCacheModified -> treated as miss
	}

	var content json.RawMessage
	if err := json.Unmarshal([]byte(lines[1]), &content); err != nil {
		return nil, nil
	}

	var expiration uint64
	if len(lines) >= 3 && strings.TrimSpace(lines[2]) != "" {
		v, err := strconv.ParseUint(strings.TrimSpace(lines[2]), 10, 64)
		if err != nil {
			return nil, nil
		}
		expiration = v
	}

	if expiration != 0 && uint64(now.Unix()) >= expiration {
		return nil, nil // expired -> miss
	}

	return &Entry{RenderedOutput: lines[0], DobContent: content, ExpirationUnix: expiration}, nil
}

// Put writes a render cache entry atomically (temp file + rename), so a
// partial write is never observed by a concurrent reader.
func (c *Cache) Put(sporeID string, renderedOutput string, dobContent json.RawMessage, now time.Time) error {
	var expiration uint64
	if c.expirationSecs != 0 {
		expiration = uint64(now.Unix()) + c.expirationSecs
	}

	var buf bytes.Buffer
	buf.WriteString(renderedOutput)
	buf.WriteByte('\n')
	buf.Write(dobContent)
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "%d\n", expiration)

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return dobtype.Wrap(dobtype.KindDOBRenderCacheModified, "create render cache directory", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".rendercache-tmp-*")
	if err != nil {
		return dobtype.Wrap(dobtype.KindDOBRenderCacheModified, "create render cache temp file", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(buf.Bytes())
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName) //nolint:errcheck
		return dobtype.Wrap(dobtype.KindDOBRenderCacheModified, "write render cache entry", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpName) //nolint:errcheck
		return dobtype.Wrap(dobtype.KindDOBRenderCacheModified, "close render cache temp file", closeErr)
	}
	return os.Rename(tmpName, c.path(sporeID))
}

// Sweep removes every cache entry whose expiration has passed, driven by
// the cron schedule in cmd/dob-decoder-server. Entries with expiration 0
// (never expire) are never swept. Malformed entries are left alone —
// Sweep only acts on entries it can positively confirm are expired.
func (c *Cache) Sweep(now time.Time) (removed int, err error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") || !strings.HasSuffix(de.Name(), ".dob") {
			continue
		}
		sporeID := strings.TrimSuffix(de.Name(), ".dob")

		entry, err := c.Get(sporeID, now)
		if err != nil {
			continue
		}
		if entry == nil {
			// Get already treats expired/malformed as a miss; only
			// remove the file here if it genuinely carried a past
			// expiration, to avoid deleting a merely-malformed entry
			// that a future write might still want to overwrite safely.
			if expired, ok := c.fileExpired(sporeID, now); ok && expired {
				if err := os.Remove(c.path(sporeID)); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

func (c *Cache) fileExpired(sporeID string, now time.Time) (expired bool, ok bool) {
	f, err := os.Open(c.path(sporeID))
	if err != nil {
		return false, false
	}
	defer f.Close() //nolint:errcheck

	lines, err := readLines(f, 3)
	if err != nil || len(lines) < 3 {
		return false, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(lines[2]), 10, 64)
	if err != nil || v == 0 {
		return false, false
	}
	return uint64(now.Unix()) >= v, true
}

func readLines(f *os.File, max int) ([]string, error) {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	var lines []string
	for sc.Scan() && len(lines) < max {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
