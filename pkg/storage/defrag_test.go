package storage

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dd0wney/timegraphdb/pkg/metrics"
)

func TestDefrag_Layout(t *testing.T) {
	tests := []struct {
		name      string
		seed      []int
		want      []int
		direction string
	}{
		{
			name:      "surplus fillers are gathered and trimmed",
			seed:      []int{gap, gap, 1, gap, 2, gap, gap, 3, gap, 4},
			want:      []int{1, 2, gap, 3, 4, gap},
			direction: "forward",
		},
		{
			name:      "rows beyond the final length move forward",
			seed:      []int{gap, gap, gap, gap, gap, gap, 1, 2},
			want:      []int{1, 2, gap},
			direction: "forward",
		},
		{
			name:      "missing fillers are appended and spread backward",
			seed:      []int{1, 2, 3, 4, 5},
			want:      []int{1, 2, gap, 3, 4, gap, 5},
			direction: "backward",
		},
		{
			name:      "deficit with a misplaced filler",
			seed:      []int{gap, 1, 2, 3, 4, 5, 6, 7},
			want:      []int{1, 2, gap, 3, 4, gap, 5, 6, gap, 7},
			direction: "backward",
		},
		{
			name:      "ideal layout is kept",
			seed:      []int{1, 2, gap, 3, 4, gap},
			want:      []int{1, 2, gap, 3, 4, gap},
			direction: "forward",
		},
		{
			name:      "only fillers shrinks to nothing",
			seed:      []int{gap, gap, gap},
			want:      []int{},
			direction: "forward",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := metrics.NewRegistry()
			s, path := testStore(t, Options{FillFactor: 2, Metrics: reg}, layout(tt.seed...))

			if err := s.Defrag(); err != nil {
				t.Fatalf("Defrag() failed: %v", err)
			}
			assertLayout(t, path, layout(tt.want...))

			if s.Len() != int64(len(tt.want)) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(tt.want))
			}
			if got := testutil.ToFloat64(reg.DefragsTotal.WithLabelValues(tt.direction)); got != 1 {
				t.Errorf("%s defrags = %v, want 1", tt.direction, got)
			}
		})
	}
}

func TestDefrag_DesignatedSlots(t *testing.T) {
	for _, ff := range []int{1, 3, 10} {
		// Start from a large deficit, then a large surplus.
		s, path := testStore(t, Options{FillFactor: ff}, layout(keyRange(1, 97)...))
		if err := s.Defrag(); err != nil {
			t.Fatalf("FillFactor %d: first Defrag() failed: %v", ff, err)
		}
		checkDesignated(t, path, ff, 97)

		for k := 1; k <= 97; k += 2 {
			if _, err := s.Delete(day(k)); err != nil {
				t.Fatalf("Delete(%d) failed: %v", k, err)
			}
		}
		if err := s.Defrag(); err != nil {
			t.Fatalf("FillFactor %d: second Defrag() failed: %v", ff, err)
		}
		checkDesignated(t, path, ff, 48)
	}
}

func checkDesignated(t *testing.T, path string, ff, populatedRows int) {
	t.Helper()
	rows := readRows(t, path)
	want := populatedRows + populatedRows/ff
	if len(rows) != want {
		t.Fatalf("FillFactor %d: file has %d rows, want %d", ff, len(rows), want)
	}
	for i, r := range rows {
		designated := i%(ff+1) == ff
		if designated != r.IsFiller() {
			t.Fatalf("FillFactor %d: slot %d filler=%v, want %v", ff, i, r.IsFiller(), designated)
		}
	}
}

func TestDefrag_KeepsEveryRow(t *testing.T) {
	seed := []int{gap, 2, 3, gap, gap, gap, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, gap, 20}
	s, path := testStore(t, Options{}, layout(seed...))

	before := populated(readRows(t, path))
	if err := s.Defrag(); err != nil {
		t.Fatalf("Defrag() failed: %v", err)
	}
	after := populated(readRows(t, path))

	if len(after) != len(before) {
		t.Fatalf("Defrag() kept %d rows, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("row %d = %s, want %s", i, after[i], before[i])
		}
	}
	if err := s.Verify(); err != nil {
		t.Errorf("Verify() after Defrag() = %v", err)
	}
}

func TestDefrag_LargeFileCrossesChunks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large defrag in short mode")
	}
	n := scanChunkRows*2 + 123
	s, path := testStore(t, Options{}, layout(keyRange(1, n)...))

	if err := s.Defrag(); err != nil {
		t.Fatalf("Defrag() failed: %v", err)
	}
	checkDesignated(t, path, DefaultFillFactor, n)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Fillers != stats.IdealFillers() {
		t.Errorf("Fillers = %d, want %d", stats.Fillers, stats.IdealFillers())
	}
}
