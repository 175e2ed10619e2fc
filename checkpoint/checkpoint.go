// checkpoint creates CheckpointIO which provides various operations with placement checkpoints.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all placements
var MAIN = []byte("main")

// PlacementData stores the result of placing one query sequence.
type PlacementData struct {
	Name          string
	EdgeU         int
	EdgeV         int
	PendantLength float64
	TreeCost      float64
	Final         bool
}

// CheckpointIO saves and restores placement checkpoints.
type CheckpointIO struct {
	db      *bolt.DB
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO.
func NewCheckpointIO(db *bolt.DB, seconds float64) (s *CheckpointIO) {
	s = &CheckpointIO{
		db:      db,
		seconds: seconds,
	}
	return
}

// Save saves a placement to the database under the query name.
func (s *CheckpointIO) Save(data *PlacementData) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, []byte(data.Name), dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// GetPlacement returns the stored placement for a query, nil if none.
func (s *CheckpointIO) GetPlacement(name string) (*PlacementData, error) {
	var data *PlacementData

	b, err := LoadData(s.db, []byte(name))

	if err != nil || b == nil {
		return nil, err
	}

	err = json.Unmarshal(b, &data)

	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished placement checkpoint for %v (cost=%v)", data.Name, data.TreeCost)
	} else {
		log.Noticef("Found unfinished placement checkpoint for %v", data.Name)
	}

	return data, nil
}

// Old returns true if last checkpoint save time too long ago.
func (s *CheckpointIO) Old() bool {
	if time.Since(s.last).Seconds() > s.seconds {
		return true
	}
	return false
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
