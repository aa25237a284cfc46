package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gzhole/toolwarden/internal/patterns"
)

const (
	auditPrefix     = "audit-"
	sensitivePrefix = "sensitive-"
	partitionExt    = ".jsonl"
	dateLayout      = "2006-01-02"

	maxLineBytes = 16 << 20
)

// Store appends records to daily JSONL partitions. Every record goes to
// audit-<date>.jsonl; records classified high also go to
// sensitive-<date>.jsonl. Each record is written with a single append so
// concurrent writers never interleave partial lines.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// OpenStore uses the first directory in dirs that exists or can be created.
func OpenStore(dirs ...string) (*Store, error) {
	var errs []error
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			errs = append(errs, err)
			continue
		}
		return &Store{dir: dir, now: time.Now}, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("no audit directory configured")
	}
	return nil, fmt.Errorf("open audit store: %w", errors.Join(errs...))
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Append writes rec to its partitions. Partition dates follow the record
// timestamp in UTC. A failure on one partition does not prevent the other;
// all failures are returned joined.
func (s *Store) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	at := rec.Time()
	if at.IsZero() {
		at = s.now()
	}
	date := at.UTC().Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := appendLine(filepath.Join(s.dir, auditPrefix+date+partitionExt), line); err != nil {
		errs = append(errs, err)
	}
	if rec.Analysis.SensitivityLevel == patterns.SensitivityHigh {
		if err := appendLine(filepath.Join(s.dir, sensitivePrefix+date+partitionExt), line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Query selects records for reading.
type Query struct {
	// Date restricts to one partition (YYYY-MM-DD); empty means all.
	Date string
	// Sensitive reads the sensitive partitions instead of the full trail.
	Sensitive bool
	SessionID string
	// Last keeps only the final N matching records when positive.
	Last int
}

// Read returns matching records in partition then line order. Malformed
// lines are skipped and counted.
func Read(dir string, q Query) ([]Record, int, error) {
	if q.Date != "" {
		if _, err := time.Parse(dateLayout, q.Date); err != nil {
			return nil, 0, fmt.Errorf("invalid date %q: want YYYY-MM-DD", q.Date)
		}
	}

	files, err := partitions(dir, q)
	if err != nil {
		return nil, 0, err
	}

	var records []Record
	skipped := 0
	for _, path := range files {
		n, err := readFile(path, func(rec Record) {
			if q.SessionID != "" && rec.SessionID != q.SessionID {
				return
			}
			records = append(records, rec)
		})
		skipped += n
		if err != nil {
			return nil, skipped, err
		}
	}

	if q.Last > 0 && q.Last < len(records) {
		records = records[len(records)-q.Last:]
	}
	return records, skipped, nil
}

func partitions(dir string, q Query) ([]string, error) {
	prefix := auditPrefix
	if q.Sensitive {
		prefix = sensitivePrefix
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, partitionExt) {
			continue
		}
		if q.Date != "" && name != prefix+q.Date+partitionExt {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func readFile(path string, fn func(Record)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		fn(rec)
	}
	return skipped, scanner.Err()
}
