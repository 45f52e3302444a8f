package pushbuf

import "github.com/gogpu/gputypes"

// Device is the real graphics device driven by the interpreter.
//
// All methods are called from a single goroutine at a time: the worker
// while async mode is enabled, the producer otherwise. Implementations
// need no locking of their own.
type Device interface {
	SetRenderState(state, value uint32)
	SetTexture(stage uint32, texture Handle)
	DrawPrimitive(topology gputypes.PrimitiveTopology, startVertex, primCount uint32)
	DrawPrimitiveUPResize()
	DrawIndexedPrimitive(topology gputypes.PrimitiveTopology, baseVertex int32, minIndex, numVertices, startIndex, primCount uint32)
	SetVertexShader(shader Handle)
	SetPixelShader(shader Handle)
	SetShaderConstants(c ShaderConstants)
	SetMaxUsedVertexShaderConstantsHint(count uint32)
	SetRenderTarget(index uint32, surface Handle)
	SetDepthStencilSurface(surface Handle)
	SetStreamSource(stream uint32, buffer Handle, offset, stride uint32)
	SetIndices(buffer Handle, format gputypes.IndexFormat)
	SetSamplerState(stage, state, value uint32)
	SetViewport(vp Viewport)
	Clear(rects []Rect, flags, color uint32, z float32, stencil uint32)
	SetVertexDeclaration(decl Handle)
	BeginScene()
	EndScene()
	Present(src, dst *Rect, window Handle)
	SetClipPlane(index uint32, plane [4]float32)
	StretchRect(src Handle, srcRect *Rect, dst Handle, dstRect *Rect, filter uint32)
	SetScissorRect(r Rect)

	// Lock maps size bytes of a buffer at offset for CPU writes.
	Lock(kind BufferKind, buffer Handle, offset, size, flags uint32) ([]byte, error)

	// Unlock releases a mapping. A zero actualSize means the whole range
	// was written.
	Unlock(kind BufferKind, buffer Handle, actualSize uint32) error

	AcquireThreadOwnership()
	ReleaseThreadOwnership()
}
