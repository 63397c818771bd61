// Package notification turns issue events into mail queue items. The
// Compiler partitions recipients by what they may see and hands one item per
// (bucket, format) cell to the queue; the MailingListCompiler renders and
// sends a cell when the queue gets to it.
package notification
