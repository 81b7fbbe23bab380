// Package fetch retrieves SignalK REST documents over HTTP.
//
// New(config.Source) builds a Client with the source's authentication
// (API key, bearer token, basic, mTLS) wired into a shared round tripper.
// Client.Fetch returns the raw body; Client.Document also parses it.
//
// A 404 from the server surfaces as ErrNotFound. SignalK answers 404 for a
// path none of the connected instruments has reported, so callers treat it
// as "nothing to export" rather than as a failure. Transport errors and 5xx
// responses are retried with truncated exponential backoff.
package fetch
