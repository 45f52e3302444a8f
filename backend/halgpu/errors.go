package halgpu

import "errors"

var (
	// ErrUnknownHandle is returned for handles that name no live resource.
	ErrUnknownHandle = errors.New("halgpu: unknown handle")

	// ErrWrongResource is returned when a handle names a resource of
	// another type, e.g. locking a shader.
	ErrWrongResource = errors.New("halgpu: handle names a different resource type")

	// ErrAlreadyLocked is returned by Lock on a buffer that is mapped.
	ErrAlreadyLocked = errors.New("halgpu: buffer already locked")

	// ErrNotLocked is returned by Unlock on a buffer that is not mapped.
	ErrNotLocked = errors.New("halgpu: buffer not locked")

	// ErrLockRange is returned when a lock range exceeds the buffer.
	ErrLockRange = errors.New("halgpu: lock range exceeds buffer size")

	// ErrInvalidSize is returned for zero-sized buffers.
	ErrInvalidSize = errors.New("halgpu: invalid buffer size")

	// ErrNotSPIRV is returned when shader code is not a SPIR-V module.
	ErrNotSPIRV = errors.New("halgpu: shader code is not SPIR-V")
)
