// Package dispatch forwards record cells to external HTTP job services.
//
// Every job follows the same shape:
//
//  1. Resolve the record from its table.
//  2. Check the declared required inputs; empty values fail with a
//     *ValidationError and no HTTP call is made.
//  3. Build the JSON request: base/table/record ids and the output field
//     (so the service can write its result back on its own) merged with
//     job-specific params.
//  4. POST once to the job's fixed endpoint.
//  5. When a timeout is configured the request runs under a deadline; if it
//     expires first the call fails with *TimeoutError and the request is
//     cancelled through its context.
//  6. A non-2xx status fails with *RemoteError carrying the status code.
//
// On success nothing is returned: the remote service writes the output field
// itself, later. The dispatcher never polls for results and never retries.
//
// Variants are parameter sets over this shape: MapImage, Generate, Translate
// (one request per language, sequentially), SearchKeywords, CrawlURL and
// SyncPost, which first provisions its post_id_<lang> number field when the
// table lacks it.
package dispatch
