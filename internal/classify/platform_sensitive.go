//go:build !windows && !darwin

package classify

// caseInsensitiveFS is false on platforms whose default filesystem is
// case-sensitive (Linux and the other inotify-based platforms).
const caseInsensitiveFS = false
