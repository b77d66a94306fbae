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
	"errors"
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Patch errors.
var (
	// ErrInvalidPatch indicates the patch is not a parseable unified diff.
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrPatchFileCount indicates the patch does not touch exactly one file.
	ErrPatchFileCount = errors.New("patch must describe exactly one file")

	// ErrPatchMismatch indicates a hunk does not apply to the original text.
	ErrPatchMismatch = errors.New("patch does not apply")
)

// ApplyPatch applies a single-file unified diff to original.
//
// Description:
//
//	Accepts either a full file diff (with ---/+++ headers) or bare hunks
//	starting at "@@". Context and removed lines are checked against the
//	original; any disagreement rejects the patch. Deleting the file yields
//	the empty text.
//
// Inputs:
//
//	original - The text the patch was made against.
//	patch    - The unified diff.
//
// Outputs:
//
//	string - The patched text.
//	error  - ErrInvalidPatch, ErrPatchFileCount or ErrPatchMismatch (wrapped).
func ApplyPatch(original, patch string) (string, error) {
	hunks, deleted, err := parsePatch(patch)
	if err != nil {
		return "", err
	}
	if deleted {
		return "", nil
	}
	return applyHunks(original, hunks)
}

// parsePatch parses the unified diff format.
func parsePatch(patch string) ([]*godiff.Hunk, bool, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, false, fmt.Errorf("%w: empty", ErrInvalidPatch)
	}

	if strings.HasPrefix(patch, "@@") {
		hunks, err := godiff.ParseHunks([]byte(patch))
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		return hunks, false, nil
	}

	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if len(fileDiffs) != 1 {
		return nil, false, fmt.Errorf("%w: got %d", ErrPatchFileCount, len(fileDiffs))
	}
	fd := fileDiffs[0]
	return fd.Hunks, fd.NewName == "/dev/null", nil
}

// applyHunks applies hunks in order to the original content.
func applyHunks(original string, hunks []*godiff.Hunk) (string, error) {
	origLines := strings.Split(original, "\n")
	newLines := make([]string, 0, len(origLines))

	origIdx := 0
	for h, hunk := range hunks {
		// A hunk with no original lines inserts after OrigStartLine.
		hunkStart := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			hunkStart = int(hunk.OrigStartLine)
		}
		if hunkStart < origIdx || hunkStart > len(origLines) {
			return "", fmt.Errorf("%w: hunk %d starts at line %d", ErrPatchMismatch, h+1, hunk.OrigStartLine)
		}
		for origIdx < hunkStart {
			newLines = append(newLines, origLines[origIdx])
			origIdx++
		}

		for _, line := range hunkLines(hunk.Body) {
			switch {
			case strings.HasPrefix(line, "+"):
				newLines = append(newLines, line[1:])
			case strings.HasPrefix(line, "-"):
				if err := expectLine(origLines, origIdx, line[1:], h); err != nil {
					return "", err
				}
				origIdx++
			case strings.HasPrefix(line, " "), line == "":
				text := strings.TrimPrefix(line, " ")
				if err := expectLine(origLines, origIdx, text, h); err != nil {
					return "", err
				}
				newLines = append(newLines, origLines[origIdx])
				origIdx++
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
			default:
				return "", fmt.Errorf("%w: hunk %d has malformed line %q", ErrInvalidPatch, h+1, line)
			}
		}
	}

	newLines = append(newLines, origLines[origIdx:]...)
	return strings.Join(newLines, "\n"), nil
}

// hunkLines splits a hunk body into lines. The body's final newline
// terminates the last line and does not start an empty one.
func hunkLines(body []byte) []string {
	text := strings.TrimSuffix(string(body), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func expectLine(lines []string, idx int, want string, hunk int) error {
	if idx >= len(lines) {
		return fmt.Errorf("%w: hunk %d runs past end of text", ErrPatchMismatch, hunk+1)
	}
	if lines[idx] != want {
		return fmt.Errorf("%w: hunk %d line %d: expected %q, found %q",
			ErrPatchMismatch, hunk+1, idx+1, want, lines[idx])
	}
	return nil
}
