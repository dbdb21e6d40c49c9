package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/timegraphdb/pkg/record"
)

// gap marks a filler slot in a test layout.
const gap = 0

var epoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// day returns the test row for key k: stamped k days after epoch with k as
// its lhs id. Keys order the same way their rows do.
func day(k int) record.Row {
	return record.NewRow(epoch.AddDate(0, 0, k), uint32(k), uint32(k)+1, 1)
}

// after returns a row that sorts between day(k) and day(k+1).
func after(k int) record.Row {
	r := day(k)
	r.RhsID += 100
	return r
}

// layout maps keys to rows, turning gap into a filler.
func layout(keys ...int) []record.Row {
	rows := make([]record.Row, len(keys))
	for i, k := range keys {
		if k != gap {
			rows[i] = day(k)
		}
	}
	return rows
}

func keyRange(from, to int) []int {
	keys := make([]int, 0, to-from+1)
	for k := from; k <= to; k++ {
		keys = append(keys, k)
	}
	return keys
}

func writeRows(t *testing.T, path string, rows []record.Row) {
	t.Helper()
	buf := make([]byte, 0, len(rows)*RowWidth)
	for _, r := range rows {
		e := record.Encode(r)
		buf = append(buf, e[:]...)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("Failed to seed %s: %v", path, err)
	}
}

func readRows(t *testing.T, path string) []record.Row {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	rows := make([]record.Row, 0, len(data)/RowWidth)
	for off := 0; off+RowWidth <= len(data); off += RowWidth {
		e, _ := record.FromBytes(data[off : off+RowWidth])
		rows = append(rows, record.Decode(e))
	}
	return rows
}

// testStore seeds a gap file with rows and opens it. The store is closed
// when the test ends.
func testStore(t *testing.T, opts Options, rows []record.Row) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.graph")
	if rows != nil {
		writeRows(t, path, rows)
	}
	s, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("Warning: Close() failed during cleanup: %v", err)
		}
	})
	return s, path
}

func assertLayout(t *testing.T, path string, want []record.Row) {
	t.Helper()
	got := readRows(t, path)
	if !slices.Equal(got, want) {
		t.Fatalf("layout mismatch\n got: %s\nwant: %s", describe(got), describe(want))
	}
}

func describe(rows []record.Row) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		switch {
		case r.IsFiller():
			parts[i] = "_"
		case r == day(int(r.LhsID)):
			parts[i] = fmt.Sprint(r.LhsID)
		default:
			parts[i] = fmt.Sprintf("%d+", r.LhsID)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func populated(rows []record.Row) []record.Row {
	var out []record.Row
	for _, r := range rows {
		if !r.IsFiller() {
			out = append(out, r)
		}
	}
	return out
}

func countGaps(rows []record.Row) int {
	return len(rows) - len(populated(rows))
}
