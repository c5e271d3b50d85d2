//go:build darwin || freebsd || linux

package library_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	filterbridge "github.com/wippyai/filter-bridge"
	"github.com/wippyai/filter-bridge/buffer"
	"github.com/wippyai/filter-bridge/library"
)

const brighterSource = `
#include <stdint.h>

typedef struct { int32_t min, extent, stride; uint32_t flags; } dim_t;
typedef struct { uint8_t code, bits; uint16_t lanes; } type_t;
typedef struct {
	uint64_t device;
	void *device_interface;
	uint8_t *host;
	uint64_t flags;
	type_t type;
	int32_t dimensions;
	dim_t *dim;
	void *padding;
} buffer_t;

int brighter(const buffer_t *in, buffer_t *out) {
	if (in->dimensions != out->dimensions || in->type.bits != 8 || out->type.bits != 8) {
		return -1;
	}
	int64_t n = 1;
	for (int i = 0; i < in->dimensions; i++) {
		if (in->dim[i].extent != out->dim[i].extent) {
			return -2;
		}
		n *= in->dim[i].extent;
	}
	for (int64_t i = 0; i < n; i++) {
		out->host[i] = (uint8_t)(in->host[i] + DELTA);
	}
	return 0;
}
`

type brighterFunc = func(in, out *buffer.Buffer) int32

// compileBrighter builds a shared library whose brighter filter adds delta to
// every byte. The test is skipped when no C compiler is installed.
func compileBrighter(t *testing.T, out string, delta int) {
	t.Helper()

	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	src := filepath.Join(t.TempDir(), "brighter.c")
	if err := os.WriteFile(src, []byte(brighterSource), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(cc, "-shared", "-fPIC", "-O1",
		fmt.Sprintf("-DDELTA=%d", delta), "-o", out, src)
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot build test library: %v\n%s", err, msg)
	}
}

func runBrighter(t *testing.T, f *library.Filter[brighterFunc], width, height, channels int) []uint8 {
	t.Helper()

	fn, err := f.Func()
	if err != nil {
		t.Fatalf("Func: %v", err)
	}

	input := make([]uint8, width*height*channels)
	output := make([]uint8, len(input))
	in := buffer.WrapReadOnly(width, height, channels, input)
	defer in.Free()
	out := buffer.Wrap(width, height, channels, output)
	defer out.Free()

	if status := fn(in, out); status != 0 {
		t.Fatalf("Expected status 0, got %d", status)
	}
	runtime.KeepAlive(input)
	return output
}

func TestNativeBrighter(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libbrighter.so")
	compileBrighter(t, lib, 10)

	m := library.NewManager()
	defer m.Close()

	if !m.Load(lib) {
		t.Fatalf("Expected %s to load: %v", lib, m.Open(lib))
	}
	f, ok := library.Resolve[brighterFunc](m, lib, "brighter")
	if !ok {
		t.Fatal("Expected brighter to resolve")
	}

	output := runBrighter(t, f, 800, 600, 3)
	if len(output) != 1440000 {
		t.Fatalf("Expected 1440000 bytes, got %d", len(output))
	}
	for i, v := range output {
		if v != 10 {
			t.Fatalf("Expected byte %d to be 10, got %d", i, v)
		}
	}

	if _, ok := library.Resolve[brighterFunc](m, lib, "darker"); ok {
		t.Error("Expected missing symbol to fail")
	}
}

func TestNativeReloadReplacedFile(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libbrighter.so")
	compileBrighter(t, lib, 10)

	m := library.NewManager()
	defer m.Close()

	if !m.Load(lib) {
		t.Fatal("Expected v1 to load")
	}
	v1, ok := library.Resolve[brighterFunc](m, lib, "brighter")
	if !ok {
		t.Fatal("Expected brighter to resolve from v1")
	}
	if got := runBrighter(t, v1, 4, 4, 3)[0]; got != 10 {
		t.Fatalf("Expected v1 to add 10, got %d", got)
	}

	staged := filepath.Join(dir, "libbrighter.v2.so")
	compileBrighter(t, staged, 20)
	if err := os.Rename(staged, lib); err != nil {
		t.Fatal(err)
	}

	if !m.Reload(lib) {
		t.Fatal("Expected reload to succeed")
	}
	if v1.Valid() {
		t.Error("Expected v1 handle to be invalid after reload")
	}
	if _, err := v1.Func(); err == nil {
		t.Error("Expected v1 Func to fail after reload")
	}

	v2, ok := library.Resolve[brighterFunc](m, lib, "brighter")
	if !ok {
		t.Fatal("Expected brighter to resolve from v2")
	}
	if got := runBrighter(t, v2, 4, 4, 3)[0]; got != 20 {
		t.Fatalf("Expected v2 to add 20, got %d", got)
	}
}

func TestNativeSelf(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("libc lookup through the global scope is only checked on linux")
	}

	m := library.NewManager()
	defer m.Close()

	if !m.LoadSelf() {
		t.Fatal("Expected LoadSelf to succeed")
	}
	f, ok := library.Resolve[func(string) int](m, filterbridge.SelfKey, "strlen")
	if !ok {
		t.Fatal("Expected strlen to resolve from the host process")
	}
	fn, err := f.Func()
	if err != nil {
		t.Fatal(err)
	}
	if n := fn("filter"); n != 6 {
		t.Errorf("Expected strlen to return 6, got %d", n)
	}
}
