// Package alerts evaluates threshold rules against the metrics produced from
// each fetched document and notifies webhooks when a rule fires or resolves.
//
// An alert remembers the sample that fired it: the series with its labels,
// the reading, and the vessel name and MMSI when vessel labels are enabled.
// Slack and Teams messages show these as facts; http and pagerduty targets
// receive the alert as JSON.
package alerts
