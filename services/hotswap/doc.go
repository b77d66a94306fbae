// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hotswap evaluates JavaScript in a goja runtime so that its
// functions can later be replaced while the program keeps running.
//
// Submit parses the source, registers every function as a block of a new
// context in a registry.Registry and replaces each function with a
// trampoline before evaluating it. A trampoline looks up the current
// revision of its block on every call and recompiles the block code in its
// own scope when the registry holds a newer revision. References taken
// before an update therefore run the new code afterwards.
//
// Session.Update diffs the new source against the previous one and carries
// block identity over to every function whose text range survives the edit
// exactly. Everything else becomes a new block; blocks without a successor
// are retired but keep serving the references that already exist.
//
// Example:
//
//	reg := registry.New()
//	s, err := hotswap.Submit(ctx, reg, "function add(x, y) { return x - y }")
//	if err != nil {
//	    return err
//	}
//	add := s.Get("add")
//	if err := s.Update(ctx, "function add(x, y) { return x + y }"); err != nil {
//	    return err
//	}
//	v, err := s.Call(add, 2, 3) // 5
//
// Limitations:
//
//   - Arrow functions, methods, getters and setters are left as written and
//     are not hot-swappable themselves; functions nested inside them are.
//   - Calling a trampoline with new returns an object whose prototype is the
//     trampoline's prototype property, not the one of the compiled unit.
//   - Top-level statements run once at Submit; Update only swaps function
//     bodies.
package hotswap
