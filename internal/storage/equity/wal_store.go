// Package equity journals account equity snapshots in a write-ahead log
// so the balance history survives restarts and can be streamed to clients.
package equity

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/paperhands/paperhands/internal/domain"
)

const (
	defaultJournalDir   = "./wal/equity"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "equity_snapshot_"
)

// Journal persists equity snapshots in a WAL for recovery and streaming.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewJournal initializes a WAL-backed equity journal under the provided directory.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init equity journal WAL")
	}

	return &Journal{wal: wal}, nil
}

// Save appends the snapshot to the journal.
func (j *Journal) Save(snapshot domain.EquitySnapshot) error {
	if j == nil || j.wal == nil {
		return errors.New("equity journal is not initialized")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal equity snapshot")
	}

	key := journalKeyPrefix + snapshot.Timestamp.UTC().Format("20060102T150405.000000000")

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// SnapshotsAfter returns all equity snapshots written after the provided index.
func (j *Journal) SnapshotsAfter(index uint64) ([]domain.EquitySnapshotRecord, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("equity journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.EquitySnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, journalKeyPrefix) {
			continue
		}
		var snapshot domain.EquitySnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode equity snapshot")
		}
		records = append(records, domain.EquitySnapshotRecord{
			Index:    idx,
			Snapshot: snapshot,
		})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index stored.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("equity journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
