// Package scope implements the bounded root stack.
//
// Open pushes a scope marker. Every slot pushed afterwards belongs to that
// scope until Close pops back through the marker and hands the slots to the
// caller for unmarking. A slot released explicitly while still on the stack
// is tombstoned with Forget, so a later reuse of the same slot index is not
// unrooted when the older scope closes.
//
// A Stack is safe for concurrent use.
package scope
