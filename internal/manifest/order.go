package manifest

import "slices"

// orderFiles returns files in display order: the manifest order reversed,
// then entrypoints moved ahead of everything else. Ties keep their
// reversed position. The input is indexed by manifest position.
func orderFiles(files []File) []File {
	out := slices.Clone(files)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b File) int {
		switch {
		case a.IsEntrypoint == b.IsEntrypoint:
			return 0
		case a.IsEntrypoint:
			return -1
		default:
			return 1
		}
	})
	return out
}
