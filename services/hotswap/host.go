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
	"context"
	"fmt"

	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/AleutianAI/hotswap/services/hotswap/rewrite"
	"github.com/dop251/goja"
)

// host is the object trampolines call through rewrite.HostObject.
//
// Its exported methods are reachable from JavaScript under their Go names.
// A returned error is thrown into the calling script.
type host struct {
	reg *registry.Registry
}

// Revision returns the current revision of a block.
func (h *host) Revision(contextID, blockID string) (int64, error) {
	rev, ok := h.reg.Revision(contextID, blockID)
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", registry.ErrUnknownBlock, contextID, blockID)
	}
	return rev, nil
}

// Code returns a block's current code for compilation.
func (h *host) Code(contextID, blockID string) (string, error) {
	code, _, ok := h.reg.Compile(contextID, blockID)
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", registry.ErrUnknownBlock, contextID, blockID)
	}
	recordRecompile(context.Background())
	return code, nil
}

// bindHost installs the host object for reg in rt.
//
// A runtime serves exactly one registry: context IDs are only unique within
// the registry that issued them. Binding the same registry twice is a no-op.
func bindHost(rt *goja.Runtime, reg *registry.Registry) error {
	if v := rt.Get(rewrite.HostObject); v != nil && !goja.IsUndefined(v) {
		if h, ok := v.Export().(*host); ok && h.reg == reg {
			return nil
		}
		return ErrRuntimeBound
	}
	return rt.Set(rewrite.HostObject, &host{reg: reg})
}
