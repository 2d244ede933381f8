// Package generation talks to the external video generation service.
//
// Client is the abstract capability the orchestrator drives: submit a job, poll its
// status, download the finished asset. HTTPClient implements it against a generic JSON
// REST service:
//
//	POST {base}/jobs        -> {"id": "..."}
//	GET  {base}/jobs/{id}   -> {"status": "pending|running|succeeded|failed", "asset_url": "...", "error": "...", "retryable": bool}
//	GET  {asset_url}        -> clip bytes
//
// Every error HTTPClient returns is classified into the services error taxonomy so the
// orchestrator can decide between retrying and failing permanently without inspecting
// HTTP details.
package generation
