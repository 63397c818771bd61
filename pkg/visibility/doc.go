// Package visibility decides which notification recipients may see
// restricted comments and worklogs, and partitions recipient sets into
// trust buckets accordingly.
package visibility
