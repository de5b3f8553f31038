// Package docs stores schema-less document collections in a column family
// of a [kv.Store]. Every collection keeps a metadata record (id counter,
// record count, creation time, schema) and one entry per record, keyed so
// that a prefix scan returns the records in id order.
package docs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/beyondbrewing/cask/kv"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/beyondbrewing/cask/value"
	"github.com/fxamacker/cbor/v2"
)

// Family is the column family holding collection data. The kv.Store must be
// opened with kv.WithFamilies(Family).
const Family = "collections"

// IDField is the record field holding the engine-assigned id.
const IDField = "__id"

var (
	ErrInvalidCollection = errors.New("docs: collection does not exist")
	ErrInvalidName       = errors.New("docs: invalid collection name")
	ErrInvalidRecord     = errors.New("docs: record must be an array or object")
	ErrCorruptMeta       = errors.New("docs: corrupt collection metadata")
)

const (
	metaPrefix   = 'm'
	recordPrefix = 'r'
	maxNameLen   = math.MaxUint16
)

// Filter decides whether a record is part of a FetchAll result.
type Filter func(record value.Value) (bool, error)

// Engine implements the collection operations.
type Engine struct {
	store *kv.Store
	fam   *kv.Family
	log   logger.Logger
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now for creation dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an engine over store.
func New(store *kv.Store, opts ...Option) (*Engine, error) {
	fam, err := store.Family(Family)
	if err != nil {
		return nil, fmt.Errorf("docs: %w", err)
	}
	e := &Engine{store: store, fam: fam, log: logger.Default(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("component", "docs")
	return e, nil
}

// KV returns the underlying store.
func (e *Engine) KV() *kv.Store { return e.store }

type meta struct {
	_       struct{} `cbor:",toarray"`
	NextID  int64
	Count   int64
	Created int64
	Schema  []byte
}

func metaKey(name string) []byte {
	return append([]byte{metaPrefix}, name...)
}

func recordPrefixOf(name string) []byte {
	p := make([]byte, 0, 3+len(name))
	p = append(p, recordPrefix)
	p = binary.BigEndian.AppendUint16(p, uint16(len(name)))
	return append(p, name...)
}

func recordKey(name string, id int64) []byte {
	return binary.BigEndian.AppendUint64(recordPrefixOf(name), uint64(id))
}

func recordID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func checkName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// loadMeta returns nil when the collection does not exist.
func (e *Engine) loadMeta(name string) (*meta, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	raw, err := e.fam.Get(metaKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m meta
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptMeta, name, err)
	}
	return &m, nil
}

func (e *Engine) saveMeta(name string, m *meta) error {
	raw, err := cbor.Marshal(m)
	if err != nil {
		return fmt.Errorf("docs: encode metadata: %w", err)
	}
	return e.fam.Put(metaKey(name), raw)
}

// atomic runs fn in a transaction unless the caller already controls the
// commit boundary.
func (e *Engine) atomic(fn func() error) error {
	if e.store.InTransaction() || !e.store.AutoCommit() {
		return fn()
	}
	return e.store.WithTransaction(fn)
}

// Exists reports whether the collection exists.
func (e *Engine) Exists(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	return e.fam.Exists(metaKey(name))
}

// Create creates an empty collection. It returns false when the collection
// already exists.
func (e *Engine) Create(name string) (bool, error) {
	m, err := e.loadMeta(name)
	if err != nil || m != nil {
		return false, err
	}
	if err := e.saveMeta(name, &meta{Created: e.now().UnixNano()}); err != nil {
		return false, err
	}
	e.log.Debug("collection created", "collection", name)
	return true, nil
}

// Drop removes the collection and every record in it. It returns false
// when the collection does not exist.
func (e *Engine) Drop(name string) (bool, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil {
		return false, err
	}
	err = e.atomic(func() error {
		if err := e.deleteRecords(name); err != nil {
			return err
		}
		return e.fam.Delete(metaKey(name))
	})
	if err != nil {
		return false, err
	}
	e.log.Debug("collection dropped", "collection", name, "records", m.Count)
	return true, nil
}

func (e *Engine) deleteRecords(name string) error {
	prefix := recordPrefixOf(name)
	c, err := e.fam.Cursor()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Seek(prefix, kv.GreaterOrEqual); err != nil {
		return err
	}
	for c.Valid() {
		k, err := c.Key()
		if err != nil {
			return err
		}
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores doc and returns the ids it was given. A non-empty list of
// arrays stores every element with consecutive ids; anything else is a
// single record. Any IDField already present in a record is replaced.
func (e *Engine) Insert(name string, doc value.Value) ([]int64, error) {
	if !doc.IsArray() {
		return nil, ErrInvalidRecord
	}
	m, err := e.loadMeta(name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, name)
	}

	records := []value.Value{doc}
	if batch := doc.Array(); batch.Len() > 0 && batch.IsList() && allArrays(batch) {
		records = batch.Values()
	}

	ids := make([]int64, 0, len(records))
	err = e.atomic(func() error {
		for _, rec := range records {
			id := m.NextID
			if err := e.putRecord(name, id, rec); err != nil {
				return err
			}
			m.NextID++
			m.Count++
			ids = append(ids, id)
		}
		return e.saveMeta(name, m)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func allArrays(a *value.Array) bool {
	for _, v := range a.All() {
		if !v.IsArray() {
			return false
		}
	}
	return true
}

func (e *Engine) putRecord(name string, id int64, rec value.Value) error {
	raw, err := value.Marshal(withID(rec, id))
	if err != nil {
		return err
	}
	return e.fam.Put(recordKey(name, id), raw)
}

// withID returns a copy of rec carrying id. List-shaped records get the id
// appended positionally, objects under IDField at the end.
func withID(rec value.Value, id int64) value.Value {
	a := rec.Array().Clone()
	if a.Len() > 0 && a.IsList() {
		a.Append(value.Int(id))
		return value.ArrayValue(a)
	}
	a.Delete(value.StrKey(IDField))
	a.SetString(IDField, value.Int(id))
	return value.ArrayValue(a)
}

// Fetch returns the record with the given id. ok is false when the record
// or the collection does not exist.
func (e *Engine) Fetch(name string, id int64) (rec value.Value, ok bool, err error) {
	if err := checkName(name); err != nil {
		return value.Null(), false, err
	}
	if id < 0 {
		return value.Null(), false, nil
	}
	raw, err := e.fam.Get(recordKey(name, id))
	if errors.Is(err, kv.ErrNotFound) {
		return value.Null(), false, nil
	}
	if err != nil {
		return value.Null(), false, err
	}
	rec, err = value.Unmarshal(raw)
	if err != nil {
		return value.Null(), false, err
	}
	return rec, true, nil
}

// FetchAll returns the collection's records in id order as a list. With a
// filter only records it accepts are included; a filter error stops the
// scan. A missing collection yields Null.
func (e *Engine) FetchAll(name string, filter Filter) (value.Value, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil {
		return value.Null(), err
	}

	out := value.NewArray()
	id := int64(0)
	for {
		next, rec, ok, err := e.Seek(name, id)
		if err != nil {
			return value.Null(), err
		}
		if !ok {
			break
		}
		keep := true
		if filter != nil {
			if keep, err = filter(rec.Clone()); err != nil {
				return value.Null(), err
			}
		}
		if keep {
			out.Append(rec)
		}
		id = next + 1
	}
	return value.ArrayValue(out), nil
}

// Seek returns the first record whose id is >= from. The cursor is opened
// per call so filters may modify the store between calls.
func (e *Engine) Seek(name string, from int64) (id int64, rec value.Value, ok bool, err error) {
	if err := checkName(name); err != nil {
		return 0, value.Null(), false, err
	}
	if from < 0 {
		from = 0
	}
	prefix := recordPrefixOf(name)

	c, err := e.fam.Cursor()
	if err != nil {
		return 0, value.Null(), false, err
	}
	defer c.Close()

	if err := c.Seek(recordKey(name, from), kv.GreaterOrEqual); err != nil {
		return 0, value.Null(), false, err
	}
	if !c.Valid() {
		return 0, value.Null(), false, nil
	}
	k, err := c.Key()
	if err != nil {
		return 0, value.Null(), false, err
	}
	if !bytes.HasPrefix(k, prefix) || len(k) != len(prefix)+8 {
		return 0, value.Null(), false, nil
	}
	raw, err := c.Value()
	if err != nil {
		return 0, value.Null(), false, err
	}
	rec, err = value.Unmarshal(raw)
	if err != nil {
		return 0, value.Null(), false, err
	}
	return recordID(k), rec, true, nil
}

// Update replaces the record with the given id by doc, keeping its id. It
// returns false when the record or collection does not exist.
func (e *Engine) Update(name string, id int64, doc value.Value) (bool, error) {
	if !doc.IsArray() {
		return false, ErrInvalidRecord
	}
	if _, ok, err := e.Fetch(name, id); err != nil || !ok {
		return false, err
	}
	if err := e.putRecord(name, id, doc); err != nil {
		return false, err
	}
	return true, nil
}

// DropRecord deletes the record with the given id. It returns false when
// the record or collection does not exist. Ids are never reused.
func (e *Engine) DropRecord(name string, id int64) (bool, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil || id < 0 {
		return false, err
	}
	ok, err := e.fam.Exists(recordKey(name, id))
	if err != nil || !ok {
		return false, err
	}
	err = e.atomic(func() error {
		if err := e.fam.Delete(recordKey(name, id)); err != nil {
			return err
		}
		m.Count--
		return e.saveMeta(name, m)
	})
	return err == nil, err
}

// TotalRecords returns the number of records; 0 for a missing collection.
func (e *Engine) TotalRecords(name string) (int64, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil {
		return 0, err
	}
	return m.Count, nil
}

// LastRecordID returns the most recently assigned id, or 0 when none was
// assigned yet or the collection does not exist.
func (e *Engine) LastRecordID(name string) (int64, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil || m.NextID == 0 {
		return 0, err
	}
	return m.NextID - 1, nil
}

// SetSchema attaches schema to the collection. The schema is never
// enforced. It returns false when the collection does not exist.
func (e *Engine) SetSchema(name string, schema value.Value) (bool, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil {
		return false, err
	}
	raw, err := value.Marshal(schema)
	if err != nil {
		return false, err
	}
	m.Schema = raw
	if err := e.saveMeta(name, m); err != nil {
		return false, err
	}
	return true, nil
}

// Schema returns the collection schema, or Null when unset or when the
// collection does not exist.
func (e *Engine) Schema(name string) (value.Value, error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil || m.Schema == nil {
		return value.Null(), err
	}
	return value.Unmarshal(m.Schema)
}

// CreationDate returns when the collection was created. ok is false when
// it does not exist.
func (e *Engine) CreationDate(name string) (t time.Time, ok bool, err error) {
	m, err := e.loadMeta(name)
	if err != nil || m == nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, m.Created), true, nil
}

// Names returns every collection name in byte order.
func (e *Engine) Names() ([]string, error) {
	c, err := e.fam.Cursor()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Seek([]byte{metaPrefix}, kv.GreaterOrEqual); err != nil {
		return nil, err
	}
	var names []string
	for k := range c.All() {
		if len(k) == 0 || k[0] != metaPrefix {
			break
		}
		names = append(names, string(k[1:]))
	}
	return names, c.Err()
}
