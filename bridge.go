package filterbridge

// SelfKey is the reserved registry key for the host process's own symbol table.
const SelfKey = "@self"

// Library is an opened library whose exported symbols can be bound to Go functions.
type Library interface {
	// Bind looks up name and stores a callable of the pointed-to function type in fnPtr.
	// fnPtr must be a non-nil pointer to a func variable.
	Bind(name string, fnPtr any) error

	// Close releases the library. Functions bound from it must not be called afterwards.
	Close() error
}

// Opener opens libraries by path.
type Opener interface {
	Open(path string) (Library, error)
}

// SelfOpener is implemented by openers that can open the host process itself.
type SelfOpener interface {
	OpenSelf() (Library, error)
}

// Memory is a guest address space that descriptors can be marshalled into
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// Allocator allocates memory in a guest address space
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr uint32)
}
