package tile

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/errors"
)

func addOne(in, out *buffer.Buffer) int32 {
	src, dst := in.Bytes(), out.Bytes()
	for i := range dst {
		dst[i] = src[i] + 1
	}
	return 0
}

func TestRunCoversEveryRow(t *testing.T) {
	tests := []struct {
		name    string
		height  int
		rows    int
		workers int
	}{
		{"exact bands", 128, 32, 4},
		{"ragged last band", 100, 32, 3},
		{"single band", 10, 64, 0},
		{"one row per band", 7, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([]uint8, 16*tt.height*3)
			for i := range src {
				src[i] = uint8(i % 200)
			}
			dst := make([]uint8, len(src))
			in := buffer.WrapReadOnly(16, tt.height, 3, src)
			defer in.Free()
			out := buffer.Wrap(16, tt.height, 3, dst)
			defer out.Free()

			err := Run(context.Background(), addOne, in, out, Options{Rows: tt.rows, Workers: tt.workers})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			for i := range dst {
				if dst[i] != src[i]+1 {
					t.Fatalf("Expected byte %d to be %d, got %d", i, src[i]+1, dst[i])
				}
			}
		})
	}
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	bands := 0

	fn := func(in, out *buffer.Buffer) int32 {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		mu.Lock()
		bands++
		mu.Unlock()
		return addOne(in, out)
	}

	in := buffer.Wrap(8, 64, 1, make([]uint8, 8*64))
	defer in.Free()
	out := buffer.Wrap(8, 64, 1, make([]uint8, 8*64))
	defer out.Free()

	if err := Run(context.Background(), fn, in, out, Options{Rows: 4, Workers: 2}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bands != 16 {
		t.Errorf("Expected 16 bands, got %d", bands)
	}
	if peak.Load() > 2 {
		t.Errorf("Expected at most 2 concurrent calls, saw %d", peak.Load())
	}
}

func TestRunBandGeometry(t *testing.T) {
	var mu sync.Mutex
	seen := map[int32]int32{}

	fn := func(in, out *buffer.Buffer) int32 {
		d := out.Dim(1)
		mu.Lock()
		seen[d.Min] = d.Extent
		mu.Unlock()
		if in.Dim(1) != d {
			return -3
		}
		return 0
	}

	in := buffer.Wrap(4, 10, 3, make([]uint8, 4*10*3))
	defer in.Free()
	out := buffer.Wrap(4, 10, 3, make([]uint8, 4*10*3))
	defer out.Free()

	if err := Run(context.Background(), fn, in, out, Options{Rows: 4}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[int32]int32{0: 4, 4: 4, 8: 2}
	if len(seen) != len(want) {
		t.Fatalf("Expected bands %v, got %v", want, seen)
	}
	for min, extent := range want {
		if seen[min] != extent {
			t.Errorf("band at %d: expected extent %d, got %d", min, extent, seen[min])
		}
	}
}

func TestRunReportsStatus(t *testing.T) {
	fn := func(in, out *buffer.Buffer) int32 {
		if out.Dim(1).Min == 8 {
			return -7
		}
		return 0
	}

	in := buffer.Wrap(2, 16, 1, make([]uint8, 32))
	defer in.Free()
	out := buffer.Wrap(2, 16, 1, make([]uint8, 32))
	defer out.Free()

	err := Run(context.Background(), fn, in, out, Options{Symbol: "blur", Rows: 4, Workers: 1})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseInvoke, Kind: errors.KindFailedStatus}) {
		t.Fatalf("Expected failed_status error, got %v", err)
	}
	status, ok := errors.Status(err)
	if !ok || status != -7 {
		t.Errorf("Expected status -7, got %d (%v)", status, ok)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	fn := func(in, out *buffer.Buffer) int32 {
		calls.Add(1)
		return 0
	}

	b := buffer.Wrap(2, 8, 1, make([]uint8, 16))
	defer b.Free()

	if err := Run(ctx, fn, b, b, Options{Rows: 1}); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("Expected no calls after cancellation, got %d", calls.Load())
	}
}

func TestRunHeightMismatch(t *testing.T) {
	in := buffer.Wrap(2, 4, 1, make([]uint8, 8))
	defer in.Free()
	out := buffer.Wrap(2, 5, 1, make([]uint8, 10))
	defer out.Free()

	err := Run(context.Background(), addOne, in, out, Options{})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLayout, Kind: errors.KindInvalidInput}) {
		t.Errorf("Expected invalid_input error, got %v", err)
	}
}
