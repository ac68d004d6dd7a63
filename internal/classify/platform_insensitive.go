//go:build windows || darwin

package classify

// caseInsensitiveFS is true on platforms whose default filesystem is
// case-insensitive (Windows, macOS/HFS+/APFS in its default mode).
const caseInsensitiveFS = true
