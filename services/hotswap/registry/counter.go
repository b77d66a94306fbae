// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"strconv"
	"sync/atomic"
)

// Counter issues monotonically increasing, human-readable identifiers of the
// form label + decimal sequence number ("c0", "c1", ... or "f0", "f1", ...).
//
// Thread Safety: Safe for concurrent use.
type Counter struct {
	label string
	next  atomic.Uint64
}

// NewCounter creates a counter whose identifiers start with label.
func NewCounter(label string) *Counter {
	return &Counter{label: label}
}

// Next returns the next identifier. Identifiers are never reused.
func (c *Counter) Next() string {
	n := c.next.Add(1) - 1
	return c.label + strconv.FormatUint(n, 10)
}

// Issued returns how many identifiers have been handed out.
func (c *Counter) Issued() uint64 {
	return c.next.Load()
}
