// Package mail delivers notification mail: SMTP sending with retry logic,
// the template engine for bodies and subjects, message threading ids, a
// background queue with an error queue, and a hot-reloadable service.
package mail
