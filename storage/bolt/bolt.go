/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bolt is a storage.Storage backed by a bbolt database with
// one bucket per session and one key per fact.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/Comcast/jess/storage"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

type Storage struct {
	Logger *zap.Logger

	filename string
	db       *bolt.DB
}

func NewStorage(filename string) (*Storage, error) {
	return &Storage{
		Logger:   zap.NewNop(),
		filename: filename,
	}, nil
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return err
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	return s.db.Close()
}

// key is big-endian so that a cursor visits facts in order of ID.
func key(id int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func (s *Storage) MakeSession(ctx context.Context, sid string) error {
	s.Logger.Debug("MakeSession", zap.String("sid", sid))
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sid))
		return err
	})
}

func (s *Storage) RemSession(ctx context.Context, sid string) error {
	s.Logger.Debug("RemSession", zap.String("sid", sid))
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(sid))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func (s *Storage) LoadFacts(ctx context.Context, sid string) ([]*storage.FactState, error) {
	fss := make([]*storage.FactState, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sid))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, bs := c.First(); k != nil; k, bs = c.Next() {
			var fs storage.FactState
			if err := json.Unmarshal(bs, &fs.Fact); err != nil {
				return err
			}
			fs.ID = int(binary.BigEndian.Uint64(k))
			fss = append(fss, &fs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debug("LoadFacts", zap.String("sid", sid), zap.Int("found", len(fss)))

	if len(fss) == 0 {
		return nil, nil
	}

	return fss, nil
}

func (s *Storage) WriteFacts(ctx context.Context, sid string, fss []*storage.FactState) error {
	s.Logger.Debug("WriteFacts", zap.String("sid", sid), zap.Int("n", len(fss)))

	if len(fss) == 0 {
		return nil
	}

	vals := make(map[int][]byte, len(fss))
	for _, fs := range fss {
		if fs.Deleted {
			vals[fs.ID] = nil
			continue
		}
		js, err := json.Marshal(fs.Fact)
		if err != nil {
			return err
		}
		vals[fs.ID] = js
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(sid))
		if err != nil {
			return err
		}
		for id, bs := range vals {
			if bs == nil {
				err = b.Delete(key(id))
			} else {
				err = b.Put(key(id), bs)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
