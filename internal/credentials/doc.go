// Package credentials keeps an authenticated session with the download
// service alive for the duration of a transfer run.
//
// Session performs the form login and holds the current client; Timer renews
// it on a fixed interval in the background. The transfer manager starts the
// timer after the first successful login and always stops it, waiting for the
// loop to exit, before returning.
package credentials
