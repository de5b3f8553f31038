package script

import (
	"context"
	"testing"
	"time"

	"github.com/beyondbrewing/cask/docs"
	"github.com/beyondbrewing/cask/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *docs.Engine {
	t.Helper()
	s, err := kv.Open(":mem:", kv.WithFamilies(docs.Family))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e, err := docs.New(s, docs.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)
	return e
}

func execute(t *testing.T, e *docs.Engine, source string, vars map[string]any) map[string]any {
	t.Helper()
	out, err := Run(context.Background(), e, source, vars)
	require.NoError(t, err)
	return out
}

func TestCollectionScript(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		$collection = 'users';
		if (!db_exists($collection)) {
			db_create($collection);
		}
		db_store($collection, {"username": "huey", "age": 3});
		$huey_id = db_last_record_id($collection);
		db_store($collection, {"username": "mickey", "age": 5});
		$mickey_id = db_last_record_id($collection);
		$users = db_fetch_all($collection);
		$nested = {
			"k1": {"foo": [1, 2, 3]},
			"k2": ["v2", ["v3", "v4"]]};
	`, nil)

	assert.Equal(t, int64(0), out["huey_id"])
	assert.Equal(t, int64(1), out["mickey_id"])
	assert.Equal(t, []any{
		map[string]any{"__id": int64(0), "age": int64(3), "username": "huey"},
		map[string]any{"__id": int64(1), "age": int64(5), "username": "mickey"},
	}, out["users"])
	assert.Equal(t, map[string]any{
		"k1": map[string]any{"foo": []any{int64(1), int64(2), int64(3)}},
		"k2": []any{"v2", []any{"v3", "v4"}},
	}, out["nested"])
}

func TestStoreBoundList(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		$collection = 'users';
		db_create($collection);
		db_store($collection, $values);
		$users = db_fetch_all($collection);
	`, map[string]any{"values": []map[string]any{
		{"username": "hubie", "color": "white"},
		{"username": "michael", "color": "black"},
	}})

	assert.Equal(t, []any{
		map[string]any{"username": "hubie", "color": "white", "__id": int64(0)},
		map[string]any{"username": "michael", "color": "black", "__id": int64(1)},
	}, out["users"])
}

func TestRecordBuiltins(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		db_create("c");
		db_store("c", [{"n": 1}, {"n": 2}, {"n": 3}]);
		$dropped = db_drop_record("c", 1);
		$dropped_again = db_drop_record("c", 1);
		$updated = db_update_record("c", 0, {"n": 10, "__id": 99});
		$missing_update = db_update_record("c", 1, {"n": 0});
		$first = db_fetch_by_id("c", 0);
		$gone = db_fetch_by_id("c", 1);
		$total = db_total_records("c");
		$last = db_last_record_id("c");
		db_store("c", {"n": 4});
		$after = db_last_record_id("c");
	`, nil)

	assert.Equal(t, true, out["dropped"])
	assert.Equal(t, false, out["dropped_again"])
	assert.Equal(t, true, out["updated"])
	assert.Equal(t, false, out["missing_update"])
	assert.Equal(t, map[string]any{"n": int64(10), "__id": int64(0)}, out["first"])
	assert.Nil(t, out["gone"])
	assert.Equal(t, int64(2), out["total"])
	assert.Equal(t, int64(2), out["last"])
	assert.Equal(t, int64(3), out["after"], "ids are never reused")
}

func TestFilter(t *testing.T) {
	e := newEngine(t)
	execute(t, e, `
		db_create("users");
		db_store("users", [{"name": "a", "age": 3}, {"name": "b", "age": 5}, {"name": "c", "age": 7}]);
	`, nil)

	t.Run("foreign", func(t *testing.T) {
		vm := NewVM(e, MustCompile(`$ret = db_fetch_all($collection, _filter_func);`))
		defer vm.Close()

		var seen []int64
		require.NoError(t, vm.RegisterFunc("_filter_func", func(args ...any) (any, error) {
			rec := args[0].(map[string]any)
			seen = append(seen, rec["__id"].(int64))
			return rec["age"].(int64) > 4, nil
		}))
		require.NoError(t, vm.Bind("collection", "users"))
		require.NoError(t, vm.Execute(context.Background()))

		ret, _ := vm.Extract("ret")
		assert.Equal(t, []any{
			map[string]any{"name": "b", "age": int64(5), "__id": int64(1)},
			map[string]any{"name": "c", "age": int64(7), "__id": int64(2)},
		}, ret)
		assert.Equal(t, []int64{0, 1, 2}, seen)
	})

	t.Run("script_function", func(t *testing.T) {
		out := execute(t, e, `
			function young($u) { return $u["age"] < 4; }
			$ret = db_fetch_all("users", young);
		`, nil)
		assert.Equal(t, []any{map[string]any{"name": "a", "age": int64(3), "__id": int64(0)}}, out["ret"])
	})

	t.Run("filter_leaves_records_alone", func(t *testing.T) {
		out := execute(t, e, `
			function strip($u) { $u["age"] = 0; return false; }
			$none = db_fetch_all("users", strip);
			$all = db_fetch_all("users");
		`, nil)
		assert.Equal(t, []any{}, out["none"])
		require.Len(t, out["all"], 3)
		assert.Equal(t, int64(3), out["all"].([]any)[0].(map[string]any)["age"])
	})

	t.Run("failing_filter_aborts", func(t *testing.T) {
		vm := NewVM(e, MustCompile(`$ret = db_fetch_all("users", bad);`))
		defer vm.Close()
		require.NoError(t, vm.RegisterFunc("bad", func(args ...any) (any, error) { return nil, assert.AnError }))

		err := vm.Execute(context.Background())
		assert.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestFetchCursor(t *testing.T) {
	e := newEngine(t)
	execute(t, e, `db_create("reg"); db_store("reg", [{"key": 0}, {"key": 1}, {"key": 2}, {"key": 3}]);`, nil)

	vm := NewVM(e, MustCompile(`$ret = db_fetch($collection);`))
	defer vm.Close()
	require.NoError(t, vm.Bind("collection", "reg"))

	for i := range 3 {
		require.NoError(t, vm.Execute(context.Background()))
		ret, _ := vm.Extract("ret")
		assert.Equal(t, map[string]any{"__id": int64(i), "key": int64(i)}, ret)
		vm.Reset()
	}

	out := execute(t, e, `
		$current = db_current_record_id("reg");
		db_fetch("reg"); db_fetch("reg"); db_fetch("reg");
		$last = db_fetch("reg");
		$done = db_fetch("reg");
		$end = db_current_record_id("reg");
		db_reset_record_cursor("reg");
		$rewound = db_fetch("reg");
	`, nil)
	assert.Equal(t, int64(0), out["current"], "a fresh VM starts at the first record")
	assert.Equal(t, map[string]any{"__id": int64(3), "key": int64(3)}, out["last"])
	assert.Nil(t, out["done"])
	assert.Equal(t, int64(4), out["end"])
	assert.Equal(t, map[string]any{"__id": int64(0), "key": int64(0)}, out["rewound"])
}

func TestMetadataBuiltins(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		$before = db_creation_date("c");
		$no_schema = db_set_schema("c", {"name": "string"});
		db_create("c");
		$date = db_creation_date("c");
		$empty = db_get_schema("c");
		$set = db_set_schema("c", {"name": "string", "age": "int"});
		$schema = db_get_schema("c");
		$not_array = db_set_schema("c", "nope");
	`, nil)

	assert.Nil(t, out["before"])
	assert.Equal(t, false, out["no_schema"])
	assert.Equal(t, "2023-11-14 22:13:20", out["date"])
	assert.Nil(t, out["empty"])
	assert.Equal(t, true, out["set"])
	assert.Equal(t, map[string]any{"name": "string", "age": "int"}, out["schema"])
	assert.Equal(t, false, out["not_array"])
}

func TestErrorLog(t *testing.T) {
	e := newEngine(t)
	vm := NewVM(e, MustCompile(`
		$stored = db_store("ghost", {"a": 1});
		$scalar = db_store("ghost", 5);
		$log = db_errlog();
	`))
	defer vm.Close()
	require.NoError(t, vm.Execute(context.Background()))

	stored, _ := vm.Extract("stored")
	assert.Equal(t, false, stored)
	log, _ := vm.Extract("log")
	assert.Contains(t, log, "db_store: docs: collection does not exist: ghost")
	assert.Contains(t, log, "db_store: docs: record must be an array or object")
	assert.Len(t, vm.ErrLog(), 2)

	vm.Reset()
	assert.Empty(t, vm.ErrLog())
}

func TestScriptTransactions(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		db_create("c");
		$began = db_begin();
		db_store("c", {"n": 1});
		$inside = db_total_records("c");
		$rolled = db_rollback();
		$after_rollback = db_total_records("c");

		db_begin();
		db_store("c", {"n": 2});
		$committed = db_commit();
		$after_commit = db_total_records("c");

		$stray = db_commit();
		$log = db_errlog();
	`, nil)

	assert.Equal(t, true, out["began"])
	assert.Equal(t, int64(1), out["inside"])
	assert.Equal(t, true, out["rolled"])
	assert.Equal(t, int64(0), out["after_rollback"])
	assert.Equal(t, true, out["committed"])
	assert.Equal(t, int64(1), out["after_commit"])
	assert.Equal(t, false, out["stray"])
	assert.Contains(t, out["log"], "db_commit")
	assert.False(t, e.KV().InTransaction())
}

func TestDropCollection(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `
		db_create("c");
		db_store("c", [{"a": 1}, {"a": 2}]);
		$dropped = db_drop_collection("c");
		$exists = db_exists("c");
		$again = db_drop("c");
		$all = db_fetch_all("c");
		$total = db_total_records("c");
	`, nil)

	assert.Equal(t, true, out["dropped"])
	assert.Equal(t, false, out["exists"])
	assert.Equal(t, false, out["again"])
	assert.Nil(t, out["all"])
	assert.Equal(t, int64(0), out["total"])
}

func TestRandomBuiltins(t *testing.T) {
	e := newEngine(t)
	out := execute(t, e, `$i = rand(); $s = rand_str(10); $d = strlen(rand_str());`, nil)

	assert.IsType(t, int64(0), out["i"])
	assert.Regexp(t, `^[a-z]{10}$`, out["s"])
	assert.Equal(t, int64(16), out["d"])
}
