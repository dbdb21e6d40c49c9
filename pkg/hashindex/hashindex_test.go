package hashindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dd0wney/timegraphdb/pkg/fileio"
	"github.com/dd0wney/timegraphdb/pkg/metrics"
)

func testIndex(t *testing.T, opts Options) (*Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unique.index")
	x, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x, path
}

// collidingKey returns a key other than key that lands in the same bucket.
func collidingKey(t *testing.T, key string) string {
	t.Helper()
	want := BucketOf(key)
	for i := 0; i < 1_000_000; i++ {
		k := fmt.Sprintf("%s-%d", key, i)
		if BucketOf(k) == want {
			return k
		}
	}
	t.Fatalf("no key colliding with %q found", key)
	return ""
}

func TestBucketOf(t *testing.T) {
	tests := map[string]int{
		"A":      412,
		"B":      269,
		"alice":  479,
		"":       261,
		"node-1": 387,
	}
	for key, want := range tests {
		if got := BucketOf(key); got != want {
			t.Errorf("BucketOf(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestOpen_PreallocatesHeads(t *testing.T) {
	x, path := testIndex(t, Options{})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != HeaderSize || x.Size() != HeaderSize {
		t.Errorf("new index is %d bytes (Size() = %d), want %d", info.Size(), x.Size(), HeaderSize)
	}

	ids, err := x.Lookup("anything")
	if err != nil || len(ids) != 0 {
		t.Errorf("Lookup() on empty index = %v, %v", ids, err)
	}
}

func TestOpen_RejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique.index")
	if err := os.WriteFile(path, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, Options{}); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("Open() = %v, want ErrCorruptIndex", err)
	}
}

func TestOpen_SecondOwnerIsLockedOut(t *testing.T) {
	_, path := testIndex(t, Options{})
	if _, err := Open(path, Options{}); !errors.Is(err, fileio.ErrLocked) {
		t.Errorf("second Open() = %v, want fileio.ErrLocked", err)
	}
}

func TestInsert_SecondIDGrowsChain(t *testing.T) {
	reg := metrics.NewRegistry()
	x, path := testIndex(t, Options{Metrics: reg})

	if err := x.Insert(5, "A"); err != nil {
		t.Fatalf("Insert(5) failed: %v", err)
	}
	if x.Size() != HeaderSize {
		t.Errorf("first insert grew the file to %d", x.Size())
	}
	if err := x.Insert(7, "A"); err != nil {
		t.Fatalf("Insert(7) failed: %v", err)
	}

	// One new segment: two slots and a next pointer.
	if x.Size() != HeaderSize+12 {
		t.Errorf("Size() = %d, want %d", x.Size(), HeaderSize+12)
	}

	ids, err := x.Lookup("A")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !slices.Equal(ids, []int32{5, 7}) {
		t.Errorf("Lookup(A) = %v, want [5 7]", ids)
	}

	raw, _ := os.ReadFile(path)
	head := int64(BucketOf("A")) * headWidth
	if got := binary.BigEndian.Uint32(raw[head:]); got != 5 {
		t.Errorf("head slot = %d, want 5", got)
	}
	if got := binary.BigEndian.Uint32(raw[head+4:]); got != HeaderSize {
		t.Errorf("head next pointer = %d, want %d", got, HeaderSize)
	}
	if got := binary.BigEndian.Uint32(raw[HeaderSize:]); got != 7 {
		t.Errorf("new segment first slot = %d, want 7", got)
	}

	if got := testutil.ToFloat64(reg.HashSegmentsCreated); got != 1 {
		t.Errorf("segments created = %v, want 1", got)
	}
}

func TestInsert_SegmentsDouble(t *testing.T) {
	x, _ := testIndex(t, Options{})

	// 1 + 2 + 4 + 8 slots.
	want := []int32{}
	for id := int32(1); id <= 15; id++ {
		if err := x.Insert(id, "bucket"); err != nil {
			t.Fatalf("Insert(%d) failed: %v", id, err)
		}
		want = append(want, id)
	}
	if got, size := x.Size(), int64(HeaderSize+12+20+36); got != size {
		t.Errorf("Size() = %d, want %d", got, size)
	}

	ids, err := x.Lookup("bucket")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !slices.Equal(ids, want) {
		t.Errorf("Lookup() = %v, want %v", ids, want)
	}

	if err := x.Insert(16, "bucket"); err != nil {
		t.Fatalf("Insert(16) failed: %v", err)
	}
	if got, size := x.Size(), int64(HeaderSize+12+20+36+68); got != size {
		t.Errorf("Size() after overflow = %d, want %d", got, size)
	}
}

func TestInsert_ReusesDeletedSlot(t *testing.T) {
	x, _ := testIndex(t, Options{})

	for _, id := range []int32{1, 2, 3} {
		if err := x.Insert(id, "k"); err != nil {
			t.Fatalf("Insert(%d) failed: %v", id, err)
		}
	}
	size := x.Size()

	deleted, err := x.Delete(2, "k")
	if err != nil || !deleted {
		t.Fatalf("Delete(2) = %v, %v", deleted, err)
	}
	if err := x.Insert(9, "k"); err != nil {
		t.Fatalf("Insert(9) failed: %v", err)
	}
	if x.Size() != size {
		t.Errorf("insert after delete grew the file from %d to %d", size, x.Size())
	}

	ids, _ := x.Lookup("k")
	if !slices.Equal(ids, []int32{1, 9, 3}) {
		t.Errorf("Lookup() = %v, want [1 9 3]", ids)
	}
}

func TestInsert_RejectsInvalidID(t *testing.T) {
	x, _ := testIndex(t, Options{})
	for _, id := range []int32{0, -4} {
		if err := x.Insert(id, "k"); !errors.Is(err, ErrInvalidNodeID) {
			t.Errorf("Insert(%d) = %v, want ErrInvalidNodeID", id, err)
		}
	}
}

func TestFind_IncludesCollisions(t *testing.T) {
	x, _ := testIndex(t, Options{})
	other := collidingKey(t, "alice")

	if err := x.Insert(1, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := x.Insert(2, other); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"alice", other} {
		ids, err := x.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", key, err)
		}
		if !slices.Equal(ids, []int32{1, 2}) {
			t.Errorf("Lookup(%q) = %v, want [1 2]", key, ids)
		}
	}
}

func TestFind_IsRestartableAndStopsEarly(t *testing.T) {
	x, _ := testIndex(t, Options{})
	for id := int32(1); id <= 6; id++ {
		x.Insert(id, "k")
	}

	seq := x.Find("k")
	for range 2 {
		var got []int32
		for id, err := range seq {
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			got = append(got, id)
			if len(got) == 4 {
				break
			}
		}
		if !slices.Equal(got, []int32{1, 2, 3, 4}) {
			t.Errorf("Find() = %v, want [1 2 3 4]", got)
		}
	}
}

func TestFind_CorruptPointer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique.index")
	x, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	x.Insert(3, "k")
	x.Close()

	raw, _ := os.ReadFile(path)
	binary.BigEndian.PutUint32(raw[int64(BucketOf("k"))*headWidth+4:], 1<<30)
	os.WriteFile(path, raw, 0644)

	x, err = Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()

	var got []int32
	var findErr error
	for id, err := range x.Find("k") {
		if err != nil {
			findErr = err
			break
		}
		got = append(got, id)
	}
	if !slices.Equal(got, []int32{3}) {
		t.Errorf("ids before the broken link = %v, want [3]", got)
	}
	if !errors.Is(findErr, ErrCorruptIndex) {
		t.Errorf("Find() error = %v, want ErrCorruptIndex", findErr)
	}
}

func TestDelete(t *testing.T) {
	x, _ := testIndex(t, Options{})
	x.Insert(4, "k")
	x.Insert(8, "k")

	tests := []struct {
		id   int32
		key  string
		want bool
	}{
		{8, "k", true},
		{8, "k", false},
		{5, "k", false},
		{4, "unrelated key", false},
		{4, "k", true},
	}
	for _, tt := range tests {
		got, err := x.Delete(tt.id, tt.key)
		if err != nil {
			t.Fatalf("Delete(%d, %q) failed: %v", tt.id, tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Delete(%d, %q) = %v, want %v", tt.id, tt.key, got, tt.want)
		}
	}
	if ids, _ := x.Lookup("k"); len(ids) != 0 {
		t.Errorf("Lookup() after deleting all = %v", ids)
	}
}

func TestUpdate(t *testing.T) {
	x, _ := testIndex(t, Options{})
	same := collidingKey(t, "old")

	x.Insert(11, "old")

	size := x.Size()
	if err := x.Update(11, "old", same); err != nil {
		t.Fatalf("Update() within bucket failed: %v", err)
	}
	if ids, _ := x.Lookup(same); !slices.Equal(ids, []int32{11}) || x.Size() != size {
		t.Errorf("Update() within a bucket changed the index: %v", ids)
	}

	if err := x.Update(11, "old", "new"); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if ids, _ := x.Lookup("old"); len(ids) != 0 {
		t.Errorf("Lookup(old) = %v after update, want empty", ids)
	}
	if ids, _ := x.Lookup("new"); !slices.Equal(ids, []int32{11}) {
		t.Errorf("Lookup(new) = %v, want [11]", ids)
	}
}

func TestReopenKeepsChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unique.index")
	x, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for id := int32(1); id <= 5; id++ {
		x.Insert(id, "k")
	}
	x.Sync()
	x.Close()

	x, err = Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	if x.Size() != HeaderSize+12+20 {
		t.Errorf("Size() after reopen = %d", x.Size())
	}
	if ids, _ := x.Lookup("k"); !slices.Equal(ids, []int32{1, 2, 3, 4, 5}) {
		t.Errorf("Lookup() after reopen = %v", ids)
	}
}

func TestClosedIndex(t *testing.T) {
	x, _ := testIndex(t, Options{})
	x.Close()

	if err := x.Insert(1, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert() = %v, want ErrClosed", err)
	}
	if _, err := x.Lookup("k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Lookup() = %v, want ErrClosed", err)
	}
	if _, err := x.Delete(1, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Delete() = %v, want ErrClosed", err)
	}
}

func TestIndexCompleteness(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("every inserted id is found under its key", prop.ForAll(
		func(keyNumbers []int) bool {
			x, err := Open(filepath.Join(t.TempDir(), "unique.index"), Options{})
			if err != nil {
				return false
			}
			defer x.Close()

			keys := make([]string, len(keyNumbers))
			for i, n := range keyNumbers {
				keys[i] = fmt.Sprintf("key-%d", n)
				if err := x.Insert(int32(i+1), keys[i]); err != nil {
					return false
				}
			}
			for i, key := range keys {
				ids, err := x.Lookup(key)
				if err != nil || !slices.Contains(ids, int32(i+1)) {
					return false
				}
			}
			return true
		},
		// A narrow key range forces repeated keys and long chains.
		gen.SliceOf(gen.IntRange(0, 40)),
	))

	properties.TestingRun(t)
}
