// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const original = `function add(x, y) {
  return x - y
}
add
`

func TestApplyPatch_FileDiff(t *testing.T) {
	patch := `--- a/add.js
+++ b/add.js
@@ -1,3 +1,3 @@
 function add(x, y) {
-  return x - y
+  return x + y
 }
`
	got, err := ApplyPatch(original, patch)
	require.NoError(t, err)
	assert.Equal(t, "function add(x, y) {\n  return x + y\n}\nadd\n", got)
}

func TestApplyPatch_BareHunk(t *testing.T) {
	patch := "@@ -4,1 +4,2 @@\n add\n+add(1, 2)\n"

	got, err := ApplyPatch(original, patch)
	require.NoError(t, err)
	assert.Equal(t, "function add(x, y) {\n  return x - y\n}\nadd\nadd(1, 2)\n", got)
}

func TestApplyPatch_Insertion(t *testing.T) {
	patch := "@@ -0,0 +1,1 @@\n+'use strict'\n"

	got, err := ApplyPatch(original, patch)
	require.NoError(t, err)
	assert.Equal(t, "'use strict'\n"+original, got)
}

func TestApplyPatch_Mismatch(t *testing.T) {
	patch := `--- a/add.js
+++ b/add.js
@@ -1,3 +1,3 @@
 function add(x, y) {
-  return x * y
+  return x + y
 }
`
	_, err := ApplyPatch(original, patch)
	assert.ErrorIs(t, err, ErrPatchMismatch)
}

func TestApplyPatch_Deletion(t *testing.T) {
	patch := `--- a/add.js
+++ /dev/null
@@ -1,4 +0,0 @@
-function add(x, y) {
-  return x - y
-}
-add
`
	got, err := ApplyPatch(original, patch)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplyPatch_Invalid(t *testing.T) {
	_, err := ApplyPatch(original, "   ")
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestApplyPatch_MultipleFiles(t *testing.T) {
	patch := `--- a/one.js
+++ b/one.js
@@ -1,1 +1,1 @@
-a
+b
--- a/two.js
+++ b/two.js
@@ -1,1 +1,1 @@
-c
+d
`
	_, err := ApplyPatch("a\n", patch)
	assert.ErrorIs(t, err, ErrPatchFileCount)
}
