// Package templatecontext assembles the named values exposed to mail
// templates. Every context starts from the base parameters (i18n, date
// formatting, look and feel, base URL); issue, user and subscription events
// add their own parameters on top.
package templatecontext
