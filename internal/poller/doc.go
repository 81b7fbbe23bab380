// Package poller periodically fetches every configured SignalK source and
// keeps the latest parsed document of each in the store.
//
// A 404 from a source means its instruments are switched off: the stored
// document is dropped so its series disappear from /metrics. Any other
// failure keeps the last document until the store's TTL expires it.
package poller
