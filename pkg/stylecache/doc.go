// Package stylecache inlines the mail stylesheet into rendered HTML. The
// parsed stylesheet is computed on first use, dropped after it has been idle
// for a while, and recomputed on demand.
package stylecache
