// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hotswap

import (
	"github.com/dop251/goja"
)

// Evaluator is the compile-and-execute service that runs rewritten source.
//
// Evaluate must run code in rt and return the value of its last expression
// statement. Implementations decide which variables the code can see.
type Evaluator interface {
	Evaluate(rt *goja.Runtime, label, code string) (goja.Value, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(rt *goja.Runtime, label, code string) (goja.Value, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(rt *goja.Runtime, label, code string) (goja.Value, error) {
	return f(rt, label, code)
}

// RuntimeEvaluator runs code as a global script of the runtime. It is the
// default Evaluator.
var RuntimeEvaluator Evaluator = EvaluatorFunc(func(rt *goja.Runtime, label, code string) (goja.Value, error) {
	return rt.RunScript(label, code)
})

// ScopedEvaluator exposes the variables of scope to the evaluated code.
//
// Description:
//
//	Every entry of scope is defined as a global of the runtime before the
//	code runs. Afterwards the current value of each of those globals is
//	exported back into scope, so assignments made by the code are visible
//	to the caller. The globals stay defined, so functions created by the
//	code keep seeing them.
//
// Thread Safety: The map is written after each evaluation; callers must not
// access it concurrently with a session using this evaluator.
func ScopedEvaluator(scope map[string]any) Evaluator {
	return EvaluatorFunc(func(rt *goja.Runtime, label, code string) (goja.Value, error) {
		for name, value := range scope {
			if err := rt.Set(name, value); err != nil {
				return nil, err
			}
		}

		v, err := rt.RunScript(label, code)

		for name := range scope {
			if current := rt.Get(name); current != nil {
				scope[name] = current.Export()
			}
		}
		return v, err
	})
}
