package report

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/redgreen/internal/runner"
)

func result(id string, started time.Time, status runner.Status) *runner.Result {
	return &runner.Result{
		RunID:     id,
		Command:   "npm test",
		Status:    status,
		Output:    "Starting test command: npm test\nok\n",
		ExitCode:  0,
		StartedAt: started,
		Duration:  time.Second,
	}
}

func TestDiskStore_RoundTrip(t *testing.T) {
	d := NewDiskStore(t.TempDir())
	in := result("run-1", time.Now().UTC().Truncate(time.Second), runner.Fail)
	require.NoError(t, d.Save(in))

	out, err := d.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Output, out.Output)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
}

func TestDiskStore_RejectsPathIDs(t *testing.T) {
	d := NewDiskStore(t.TempDir())
	_, err := d.Load("../etc/passwd")
	assert.Error(t, err)
	_, err = d.Load("")
	assert.Error(t, err)
}

func TestDiskStore_LazyTempDir(t *testing.T) {
	d := NewDiskStore("")
	require.NoError(t, d.Save(result("run-tmp", time.Now(), runner.Success)))
	_, err := d.Load("run-tmp")
	require.NoError(t, err)
}

func TestLRUStore_EvictsToBackingStore(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	lru := NewLRUStore(2, disk)
	base := time.Now()

	for i := range 3 {
		require.NoError(t, lru.Save(result(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second), runner.Success)))
	}
	assert.Len(t, lru.Recent(0), 2, "capacity bounds the cache")

	// run-0 was evicted but is still on disk.
	r, err := lru.Load("run-0")
	require.NoError(t, err)
	assert.Equal(t, "run-0", r.RunID)
}

func TestLRUStore_RecentNewestFirst(t *testing.T) {
	lru := NewLRUStore(5, NewDiskStore(t.TempDir()))
	base := time.Now()
	require.NoError(t, lru.Save(result("b", base.Add(time.Second), runner.Fail)))
	require.NoError(t, lru.Save(result("a", base, runner.Success)))
	require.NoError(t, lru.Save(result("c", base.Add(2*time.Second), runner.Error)))

	// Loading promotes in the LRU but must not reorder the listing.
	_, err := lru.Load("a")
	require.NoError(t, err)

	var ids []string
	for _, r := range lru.Recent(0) {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
	assert.Len(t, lru.Recent(2), 2)
	assert.Equal(t, "c", lru.Latest().RunID)
}

func TestLRUStore_LatestEmpty(t *testing.T) {
	lru := NewLRUStore(1, NewDiskStore(t.TempDir()))
	assert.Nil(t, lru.Latest())
}

func TestGrep(t *testing.T) {
	r := &runner.Result{Output: "one\ntwo\nFAIL three\nfour\nfive\n"}

	lines, err := Grep(r, "FAIL", 1)
	require.NoError(t, err)
	assert.Equal(t, []Line{{2, "two"}, {3, "FAIL three"}, {4, "four"}}, lines)

	all, err := Grep(r, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = Grep(r, "(", 0)
	assert.Error(t, err)
}

func TestTail(t *testing.T) {
	out := strings.Repeat("x\n", 10)
	assert.Equal(t, out, Tail(out, 0))
	assert.Equal(t, out, Tail(out, 10))

	got := Tail(out, 3)
	assert.True(t, strings.HasPrefix(got, "... (7 lines omitted)\n"))
	assert.True(t, strings.HasSuffix(got, "x\nx\nx"))
}

func TestSummarize(t *testing.T) {
	r := result("run-s", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), runner.Fail)
	s := Summarize(r)
	assert.Equal(t, "run-s", s.RunID)
	assert.Equal(t, runner.Fail, s.Status)
	assert.Equal(t, "2025-03-01T12:00:00Z", s.Started)
	assert.Equal(t, "1s", s.Duration)
}
