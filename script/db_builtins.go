package script

import (
	"errors"
	"strings"
	"time"

	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/value"
)

func dbBuiltins() map[string]builtinFunc {
	return map[string]builtinFunc{
		"db_exists":              dbExists,
		"db_create":              dbCreate,
		"db_drop_collection":     dbDrop,
		"db_drop":                dbDrop,
		"db_store":               dbStore,
		"db_put":                 dbStore,
		"db_fetch_by_id":         dbFetchByID,
		"db_fetch_all":           dbFetchAll,
		"db_update_record":       dbUpdateRecord,
		"db_drop_record":         dbDropRecord,
		"db_total_records":       dbTotalRecords,
		"db_last_record_id":      dbLastRecordID,
		"db_current_record_id":   dbCurrentRecordID,
		"db_reset_record_cursor": dbResetRecordCursor,
		"db_fetch":               dbFetch,
		"db_set_schema":          dbSetSchema,
		"db_get_schema":          dbGetSchema,
		"db_creation_date":       dbCreationDate,
		"db_errlog":              dbErrlog,
		"db_begin":               dbBegin,
		"db_commit":              dbCommit,
		"db_rollback":            dbRollback,
	}
}

// collection validates the engine and the collection-name argument.
func collection(r *run, pos Position, fn string, args []value.Value, want int) (*docs.Engine, string, error) {
	if r.vm.engine == nil {
		return nil, "", ErrNoEngine
	}
	if err := argc(pos, fn, args, want); err != nil {
		return nil, "", err
	}
	if !args[0].IsString() {
		return nil, "", runtimeErrorf(pos, "%s() expects a collection name, %s given", fn, args[0].Kind())
	}
	return r.vm.engine, args[0].ToText(), nil
}

// soft reports whether err is a caller mistake that builtins record in the
// error log instead of aborting the script.
func soft(err error) bool {
	return errors.Is(err, docs.ErrInvalidCollection) ||
		errors.Is(err, docs.ErrInvalidName) ||
		errors.Is(err, docs.ErrInvalidRecord)
}

func boolResult(ok bool, err error) (value.Value, error) {
	if err != nil {
		return value.Null(), err
	}
	return value.Bool(ok), nil
}

func intResult(n int64, err error) (value.Value, error) {
	if err != nil {
		return value.Null(), err
	}
	return value.Int(n), nil
}

func dbExists(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_exists", args, 1)
	if err != nil {
		return value.Null(), err
	}
	return boolResult(e.Exists(name))
}

func dbCreate(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_create", args, 1)
	if err != nil {
		return value.Null(), err
	}
	ok, err := e.Create(name)
	if soft(err) {
		r.vm.logError("db_create: %v", err)
		return value.Bool(false), nil
	}
	return boolResult(ok, err)
}

func dbDrop(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_drop_collection", args, 1)
	if err != nil {
		return value.Null(), err
	}
	delete(r.vm.cursors, name)
	return boolResult(e.Drop(name))
}

// dbStore inserts a record or a list of records. A missing collection or a
// non-array record is logged and yields false.
func dbStore(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_store", args, 2)
	if err != nil {
		return value.Null(), err
	}
	if _, err := e.Insert(name, args[1]); err != nil {
		if soft(err) {
			r.vm.logError("db_store: %v", err)
			return value.Bool(false), nil
		}
		return value.Null(), err
	}
	return value.Bool(true), nil
}

func dbFetchByID(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_fetch_by_id", args, 2)
	if err != nil {
		return value.Null(), err
	}
	rec, _, err := e.Fetch(name, args[1].ToInt())
	return rec, err
}

// dbFetchAll returns every record, or those for which the callable in the
// second argument returns a truthy value.
func dbFetchAll(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_fetch_all", args, 1)
	if err != nil {
		return value.Null(), err
	}
	var filter docs.Filter
	if cb := arg(args, 1); !cb.IsNull() {
		filter = func(rec value.Value) (bool, error) {
			keep, err := r.callValue(pos, cb, rec)
			return keep.Truthy(), err
		}
	}
	return e.FetchAll(name, filter)
}

func dbUpdateRecord(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_update_record", args, 3)
	if err != nil {
		return value.Null(), err
	}
	ok, err := e.Update(name, args[1].ToInt(), args[2])
	if soft(err) {
		r.vm.logError("db_update_record: %v", err)
		return value.Bool(false), nil
	}
	return boolResult(ok, err)
}

func dbDropRecord(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_drop_record", args, 2)
	if err != nil {
		return value.Null(), err
	}
	return boolResult(e.DropRecord(name, args[1].ToInt()))
}

func dbTotalRecords(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_total_records", args, 1)
	if err != nil {
		return value.Null(), err
	}
	return intResult(e.TotalRecords(name))
}

func dbLastRecordID(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_last_record_id", args, 1)
	if err != nil {
		return value.Null(), err
	}
	return intResult(e.LastRecordID(name))
}

// dbCurrentRecordID reports the id db_fetch would return next. Once the
// cursor has passed the last record it reports the cursor position.
func dbCurrentRecordID(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_current_record_id", args, 1)
	if err != nil {
		return value.Null(), err
	}
	cur := r.vm.cursors[name]
	id, _, ok, err := e.Seek(name, cur)
	if err != nil {
		return value.Null(), err
	}
	if !ok {
		return value.Int(cur), nil
	}
	return value.Int(id), nil
}

func dbResetRecordCursor(r *run, pos Position, args []value.Value) (value.Value, error) {
	_, name, err := collection(r, pos, "db_reset_record_cursor", args, 1)
	if err != nil {
		return value.Null(), err
	}
	delete(r.vm.cursors, name)
	return value.Bool(true), nil
}

// dbFetch returns the record at the VM's cursor for the collection and
// advances the cursor, or null once every record was returned.
func dbFetch(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_fetch", args, 1)
	if err != nil {
		return value.Null(), err
	}
	id, rec, ok, err := e.Seek(name, r.vm.cursors[name])
	if err != nil || !ok {
		return value.Null(), err
	}
	r.vm.cursors[name] = id + 1
	return rec, nil
}

func dbSetSchema(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_set_schema", args, 2)
	if err != nil {
		return value.Null(), err
	}
	if !args[1].IsArray() {
		r.vm.logError("db_set_schema: schema must be an array or object")
		return value.Bool(false), nil
	}
	return boolResult(e.SetSchema(name, args[1]))
}

func dbGetSchema(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_get_schema", args, 1)
	if err != nil {
		return value.Null(), err
	}
	return e.Schema(name)
}

// dbCreationDate formats the creation time as "2006-01-02 15:04:05" UTC.
func dbCreationDate(r *run, pos Position, args []value.Value) (value.Value, error) {
	e, name, err := collection(r, pos, "db_creation_date", args, 1)
	if err != nil {
		return value.Null(), err
	}
	t, ok, err := e.CreationDate(name)
	if err != nil || !ok {
		return value.Null(), err
	}
	return value.String(t.UTC().Format(time.DateTime)), nil
}

func dbErrlog(r *run, _ Position, _ []value.Value) (value.Value, error) {
	return value.String(strings.Join(r.vm.errlog, "\n")), nil
}

func dbBegin(r *run, _ Position, _ []value.Value) (value.Value, error) {
	if r.vm.engine == nil {
		return value.Null(), ErrNoEngine
	}
	if _, err := r.vm.engine.KV().Begin(); err != nil {
		r.vm.logError("db_begin: %v", err)
		return value.Bool(false), nil
	}
	return value.Bool(true), nil
}

func dbCommit(r *run, _ Position, _ []value.Value) (value.Value, error) {
	if r.vm.engine == nil {
		return value.Null(), ErrNoEngine
	}
	if err := r.vm.engine.KV().Commit(); err != nil {
		r.vm.logError("db_commit: %v", err)
		return value.Bool(false), nil
	}
	return value.Bool(true), nil
}

func dbRollback(r *run, _ Position, _ []value.Value) (value.Value, error) {
	if r.vm.engine == nil {
		return value.Null(), ErrNoEngine
	}
	if err := r.vm.engine.KV().Rollback(); err != nil {
		r.vm.logError("db_rollback: %v", err)
		return value.Bool(false), nil
	}
	return value.Bool(true), nil
}
