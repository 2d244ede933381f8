// Package llm provides an OpenRouter chat client used to enhance generation prompts.
//
// EnhancePrompt sends a narration segment with a fixed system prompt and expects
// {"prompt": "..."} back. The rewrite only shapes what is submitted; the cache
// fingerprint is taken from the segment text, so rewrites may vary between runs.
//
// Failures are reported with the services error types: 408/429/5xx, transport
// errors, and empty completions are TransientNetworkError and are retried with
// exponential backoff (base 1s, max 10s, 5 attempts) or the server's Retry-After.
// Refusals and other statuses are PermanentRequestError and end the call.
// Callers treat any error as "no enhancement" and keep the original prompt.
package llm
