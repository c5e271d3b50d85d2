package engine

// Hand-assembled filter modules. They follow the guest ABI described in doc.go:
// a bump allocator behind malloc/free and filters that walk rank 3 descriptors.

func uleb(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmSection(id byte, items ...[]byte) []byte {
	payload := uleb(len(items))
	for _, it := range items {
		payload = append(payload, it...)
	}
	return append(append([]byte{id}, uleb(len(payload))...), payload...)
}

func wasmName(s string) []byte {
	return append(uleb(len(s)), s...)
}

func wasmExport(name string, kind, index byte) []byte {
	return append(wasmName(name), kind, index)
}

func wasmBody(locals []byte, code ...byte) []byte {
	b := append(append([]byte{}, locals...), code...)
	return append(uleb(len(b)), b...)
}

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

const (
	secType     = 1
	secFunction = 3
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secCode     = 10
)

var (
	typeI32ToI32    = []byte{0x60, 0x01, 0x7f, 0x01, 0x7f}
	typeI32ToVoid   = []byte{0x60, 0x01, 0x7f, 0x00}
	typeI32I32ToI32 = []byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}
)

// loadExtents leaves dim[0].extent*dim[1].extent*dim[2].extent of the descriptor
// in local buf on the stack, using local dim as scratch.
func loadExtents(buf, dim byte) []byte {
	return []byte{
		0x20, buf, 0x28, 0x02, 0x20, // i32.load offset=32 (dim)
		0x21, dim,
		0x20, dim, 0x28, 0x02, 0x04, // dim[0].extent
		0x20, dim, 0x28, 0x02, 0x14, // dim[1].extent
		0x6c,
		0x20, dim, 0x28, 0x02, 0x24, // dim[2].extent
		0x6c,
	}
}

// filterModule exports:
//
//	brighter(in, out) i32  out[i] = in[i] + delta
//	fill(out, value) i32   out[i] = value
//	boom(in, out) i32      traps
//	rank(buf) i32          descriptor dimensions
func filterModule(delta byte) []byte {
	mallocCode := wasmBody([]byte{0x00},
		0x23, 0x00, // global.get heap
		0x23, 0x00,
		0x20, 0x00,
		0x6a,
		0x41, 0x07,
		0x6a,
		0x41, 0x78, // -8
		0x71,
		0x24, 0x00,
		0x0b,
	)
	freeCode := wasmBody([]byte{0x00}, 0x0b)

	// locals: 2=i 3=n 4=src 5=dst 6=dim
	brighter := loadExtents(0, 6)
	brighter = append(brighter,
		0x21, 0x03,
		0x20, 0x00, 0x28, 0x02, 0x0c, 0x21, 0x04, // src = in.host
		0x20, 0x01, 0x28, 0x02, 0x0c, 0x21, 0x05, // dst = out.host
		0x02, 0x40,
		0x03, 0x40,
		0x20, 0x02, 0x20, 0x03, 0x4f, 0x0d, 0x01, // i >= n -> break
		0x20, 0x05, 0x20, 0x02, 0x6a, // dst+i
		0x20, 0x04, 0x20, 0x02, 0x6a, // src+i
		0x2d, 0x00, 0x00, // i32.load8_u
		0x41, delta,
		0x6a,
		0x3a, 0x00, 0x00, // i32.store8
		0x20, 0x02, 0x41, 0x01, 0x6a, 0x21, 0x02,
		0x0c, 0x00,
		0x0b,
		0x0b,
		0x41, 0x00,
		0x0b,
	)
	brighterCode := wasmBody([]byte{0x01, 0x05, 0x7f}, brighter...)

	// locals: 2=i 3=n 4=dst 5=dim
	fill := loadExtents(0, 5)
	fill = append(fill,
		0x21, 0x03,
		0x20, 0x00, 0x28, 0x02, 0x0c, 0x21, 0x04,
		0x02, 0x40,
		0x03, 0x40,
		0x20, 0x02, 0x20, 0x03, 0x4f, 0x0d, 0x01,
		0x20, 0x04, 0x20, 0x02, 0x6a,
		0x20, 0x01,
		0x3a, 0x00, 0x00,
		0x20, 0x02, 0x41, 0x01, 0x6a, 0x21, 0x02,
		0x0c, 0x00,
		0x0b,
		0x0b,
		0x41, 0x00,
		0x0b,
	)
	fillCode := wasmBody([]byte{0x01, 0x04, 0x7f}, fill...)

	boomCode := wasmBody([]byte{0x00}, 0x00, 0x0b)
	rankCode := wasmBody([]byte{0x00}, 0x20, 0x00, 0x28, 0x02, 0x1c, 0x0b)

	var mod []byte
	mod = append(mod, wasmHeader...)
	mod = append(mod, wasmSection(secType, typeI32ToI32, typeI32ToVoid, typeI32I32ToI32)...)
	mod = append(mod, wasmSection(secFunction, []byte{0}, []byte{1}, []byte{2}, []byte{2}, []byte{2}, []byte{0})...)
	mod = append(mod, wasmSection(secMemory, []byte{0x00, 0x80, 0x01})...) // 128 pages
	mod = append(mod, wasmSection(secGlobal, []byte{0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b})...)
	mod = append(mod, wasmSection(secExport,
		wasmExport("memory", 0x02, 0),
		wasmExport("malloc", 0x00, 0),
		wasmExport("free", 0x00, 1),
		wasmExport("brighter", 0x00, 2),
		wasmExport("fill", 0x00, 3),
		wasmExport("boom", 0x00, 4),
		wasmExport("rank", 0x00, 5),
	)...)
	mod = append(mod, wasmSection(secCode, mallocCode, freeCode, brighterCode, fillCode, boomCode, rankCode)...)
	return mod
}

// bareModule exports memory and rank but no allocator.
func bareModule() []byte {
	var mod []byte
	mod = append(mod, wasmHeader...)
	mod = append(mod, wasmSection(secType, typeI32ToI32)...)
	mod = append(mod, wasmSection(secFunction, []byte{0})...)
	mod = append(mod, wasmSection(secMemory, []byte{0x00, 0x01})...)
	mod = append(mod, wasmSection(secExport,
		wasmExport("memory", 0x02, 0),
		wasmExport("rank", 0x00, 0),
	)...)
	mod = append(mod, wasmSection(secCode, wasmBody([]byte{0x00}, 0x20, 0x00, 0x28, 0x02, 0x1c, 0x0b))...)
	return mod
}
