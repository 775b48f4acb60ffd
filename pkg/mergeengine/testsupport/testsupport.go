// Package testsupport provides conflict-marker fixture helpers used only by
// pkg/mergeengine's own tests and by callers scripting a fake agent
// conflict-resolution backend. It is never invoked by production conflict
// resolution, which always defers to vcsport.Port.
package testsupport

import "strings"

// StripConflictMarkers resolves a single `<<<<<<< / ======= / >>>>>>>`
// conflict block per occurrence by keeping the "ours" side (the content
// between the markers and the separator), returning ok=false if the input
// carries no conflict markers.
func StripConflictMarkers(input string) (string, bool) {
	if !strings.Contains(input, "<<<<<<<") {
		return "", false
	}

	var out strings.Builder
	remainder := input
	for {
		start := strings.Index(remainder, "<<<<<<<")
		if start < 0 {
			out.WriteString(remainder)
			break
		}
		out.WriteString(remainder[:start])

		afterMarker := remainder[start+len("<<<<<<<"):]
		sepIdx := strings.Index(afterMarker, "=======")
		if sepIdx < 0 {
			out.WriteString(remainder[start:])
			break
		}
		afterLeft := afterMarker[sepIdx+len("======="):]

		endIdx := strings.Index(afterLeft, ">>>>>>>")
		if endIdx < 0 {
			out.WriteString(remainder[start:])
			break
		}
		right := afterLeft[:endIdx]
		resolved := strings.TrimPrefix(right, "\n")
		out.WriteString(resolved)

		afterRight := afterLeft[endIdx+len(">>>>>>>"):]
		if nl := strings.IndexByte(afterRight, '\n'); nl >= 0 {
			remainder = afterRight[nl+1:]
		} else {
			remainder = ""
			break
		}
	}
	return out.String(), true
}

// MockConflictResolution applies StripConflictMarkers in place to every file
// in files that exists and contains conflict markers; it is the Go test
// double for a scripted agent that "resolves" a conflict by picking the left
// side of every hunk.
func MockConflictResolution(readFile func(path string) (string, error), writeFile func(path, contents string) error, files []string) error {
	for _, path := range files {
		contents, err := readFile(path)
		if err != nil {
			continue
		}
		if resolved, ok := StripConflictMarkers(contents); ok {
			if err := writeFile(path, resolved); err != nil {
				return err
			}
		}
	}
	return nil
}
