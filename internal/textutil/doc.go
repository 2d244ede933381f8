// Package textutil provides the text helpers shared by segmentation, fingerprinting,
// and asset naming.
//
// The primary use cases are:
//   - Estimating token counts with a cheap characters-per-token heuristic
//   - Truncating text to a token budget on a word boundary
//   - Normalizing scripts and prompts (NFC, line endings, whitespace)
//   - Sanitizing filenames and path segments for safe filesystem use
//
// Every helper is a pure function of its input; estimators carry only their
// configuration and are safe for concurrent use.
package textutil
