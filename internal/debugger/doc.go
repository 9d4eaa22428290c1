// Package debugger drives script evaluation in a remote browser over the
// ecmascript-debugger service.
//
// Ownership boundary:
// - runtime registry and the active runtime
// - frame resolution by path or index
// - script evaluation, argument marshaling, retry and result decoding
// - pushed runtime/window event handling
//
// All host traffic goes through a session.Dispatcher, so the package runs
// unchanged against a live Conn or a scripted fake.
package debugger
