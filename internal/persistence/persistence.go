package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/markusressel/qadc2go/internal/qadc"
	"github.com/markusressel/qadc2go/internal/ui"
	bolt "go.etcd.io/bbolt"
)

const (
	BucketCalibration = "calibration"
)

type Persistence interface {
	Init() error

	LoadCalibration(instanceId string) (qadc.Calibration, error)
	SaveCalibration(instanceId string, calibration qadc.Calibration) (err error)
	DeleteCalibration(instanceId string) (err error)
}

type persistence struct {
	dbPath string
}

func NewPersistence(dbPath string) Persistence {
	p := &persistence{
		dbPath: dbPath,
	}
	return p
}

func (p persistence) Init() (err error) {
	// get parent path of dbPath
	parentDir := filepath.Dir(p.dbPath)
	_, err = os.Stat(parentDir)
	if errors.Is(err, os.ErrNotExist) {
		// create directory
		ui.Info("Creating directory for db: %s", parentDir)
		err = os.MkdirAll(parentDir, 0755)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p persistence) openPersistence() (db *bolt.DB, err error) {
	db, err = bolt.Open(p.dbPath, 0600, &bolt.Options{Timeout: 1 * time.Minute})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// SaveCalibration stores the calibration of the given instance
func (p persistence) SaveCalibration(instanceId string, calibration qadc.Calibration) (err error) {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	data, err := json.Marshal(calibration)
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketCalibration))
		if err != nil {
			return fmt.Errorf("create bucket: %s", err)
		}
		return b.Put([]byte(instanceId), data)
	})
}

// LoadCalibration loads the calibration of the given instance. os.ErrNotExist
// is returned if there is none.
func (p persistence) LoadCalibration(instanceId string) (qadc.Calibration, error) {
	db, err := p.openPersistence()
	if err != nil {
		return qadc.Calibration{}, err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	var calibration qadc.Calibration
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCalibration))
		if b == nil {
			return os.ErrNotExist
		}
		v := b.Get([]byte(instanceId))
		if v == nil {
			return os.ErrNotExist
		}

		err := json.Unmarshal(v, &calibration)
		if err != nil {
			// if we cannot read the saved data, delete it
			ui.Warning("Unable to unmarshal saved calibration for %s: %v", instanceId, err)
			err := b.Delete([]byte(instanceId))
			if err != nil {
				ui.Error("Unable to delete corrupt data key %s: %v", instanceId, err)
			}
			return os.ErrNotExist
		}
		return nil
	})

	return calibration, err
}

func (p persistence) DeleteCalibration(instanceId string) error {
	db, err := p.openPersistence()
	if err != nil {
		return err
	}
	defer func(db *bolt.DB) {
		_ = db.Close()
	}(db)

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCalibration))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(instanceId))
	})
}
