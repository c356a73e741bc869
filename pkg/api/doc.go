// Package api exposes the budget engine over HTTP.
//
// Public routes cover budget CRUD and the enforcement check. The /internal
// routes (sweep triggers and usage recording) require the shared secret in
// X-Sweep-Secret or as a bearer token and answer 401 without it.
//
// Errors are JSON objects of the form
//
//	{"error": {"message": "...", "type": "invalid_request_error", "code": "validation_failed", "fields": [...]}}
//
// Validation failures map to 400, unknown budgets to 404, duplicate IDs to
// 409 and everything else to 500.
package api
