package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/merklekv-mobile/pkg/types"
)

var (
	bucketSnapshot = []byte("entries_snapshot")
	bucketLog      = []byte("entries_log")
)

// PersistentEngine wraps a MemEngine with a BoltDB-backed append log plus
// periodic compacted snapshot, per spec.md §6's persisted state layout. On
// NewPersistentEngine the snapshot is loaded first, then the log is replayed
// through the normal Put path — replay is idempotent because Put's LWW/dedup
// rules are the same whether the caller is local, remote, or recovery.
type PersistentEngine struct {
	*MemEngine
	db      *bolt.DB
	logSize int
}

// NewPersistentEngine opens (creating if absent) a BoltDB file under dataDir
// and replays any previously persisted state into a fresh in-memory engine.
func NewPersistentEngine(dataDir string) (*PersistentEngine, error) {
	dbPath := filepath.Join(dataDir, "merklekv.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open persistence db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshot, bucketLog} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	p := &PersistentEngine{MemEngine: NewMemEngine(), db: db}
	if err := p.replay(); err != nil {
		db.Close()
		return nil, fmt.Errorf("replay persisted state: %w", err)
	}
	return p, nil
}

func (p *PersistentEngine) replay() error {
	return p.db.View(func(tx *bolt.Tx) error {
		apply := func(_, v []byte) error {
			var e types.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode persisted entry: %w", err)
			}
			_, err := p.MemEngine.Put(e)
			return err
		}
		if err := tx.Bucket(bucketSnapshot).ForEach(apply); err != nil {
			return err
		}
		return tx.Bucket(bucketLog).ForEach(apply)
	})
}

const compactThreshold = 500

// Put applies the mutation in-memory, then appends it to the durable log.
// Compaction into the snapshot bucket happens opportunistically once the
// log grows past compactThreshold, so a crash never loses more than one
// compaction interval of writes. This shadows the embedded MemEngine.Put so
// PersistentEngine satisfies Engine durably end to end.
func (p *PersistentEngine) Put(e types.Entry) (bool, error) {
	accepted, err := p.MemEngine.Put(e)
	if err != nil || !accepted {
		return accepted, err
	}

	if err := p.appendLog(e); err != nil {
		return accepted, fmt.Errorf("persist entry: %w", err)
	}
	return accepted, nil
}

func (p *PersistentEngine) appendLog(e types.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return p.db.Update(func(tx *bolt.Tx) error {
		log := tx.Bucket(bucketLog)
		seq, err := log.NextSequence()
		if err != nil {
			return err
		}
		if err := log.Put(itob(seq), data); err != nil {
			return err
		}
		p.logSize++
		if p.logSize >= compactThreshold {
			if err := p.compactLocked(tx); err != nil {
				return err
			}
			p.logSize = 0
		}
		return nil
	})
}

// compactLocked rewrites the snapshot bucket from the current in-memory
// state and clears the log bucket; caller already holds a bolt write
// transaction.
func (p *PersistentEngine) compactLocked(tx *bolt.Tx) error {
	if err := tx.DeleteBucket(bucketSnapshot); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	snap, err := tx.CreateBucket(bucketSnapshot)
	if err != nil {
		return err
	}

	entries, err := p.MemEngine.AllEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := snap.Put([]byte(e.Key), data); err != nil {
			return err
		}
	}

	if err := tx.DeleteBucket(bucketLog); err != nil && err != bolt.ErrBucketNotFound {
		return err
	}
	_, err = tx.CreateBucket(bucketLog)
	return err
}

func (p *PersistentEngine) Close() error {
	return p.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
