// Package webhook implements signed record-update hooks that run a job
// profile against one record.
//
// Every endpoint requires an HMAC-SHA256 signature of the raw body, computed
// with the endpoint's pre-shared secret and sent in its signature header as
// "sha256=<hex>" or bare hex. Signatures are compared in constant time and
// every verification failure answers a generic 403.
//
// # Configuration
//
//	webhooks:
//	  listen: "127.0.0.1:8081"
//	  endpoints:
//	    - path: /hooks/place-map
//	      job: place-map
//	      secret: ${CELLHOOK_HOOK_SECRET}
//	      signature_header: X-Signature-256
//	      max_body_size: 64KiB
//
// # Request Flow
//
//  1. HTTP POST arrives at a configured path
//  2. Body size checked (413 if too large)
//  3. Signature verified (403 if missing or wrong)
//  4. Body decoded as {"record_id": "..."} (400 if invalid)
//  5. Job run synchronously; 202 with the invocation id on success
//
// # Error Responses
//
//   - 404 Not Found: unknown hook path, or the record does not exist
//   - 422 Unprocessable Entity: the record lacks the job's inputs
//   - 502 Bad Gateway: the job service answered with a non-2xx status
//   - 504 Gateway Timeout: the job service did not answer in time
//   - 500 Internal Server Error: anything else
package webhook
