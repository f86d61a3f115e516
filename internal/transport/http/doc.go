// Package http exposes the license engine over a JSON API.
//
// Handlers stay thin: they decode and validate the request, call the
// LicenseService, and render either the result or an RFC 7807 problem.
// Routes are mounted by the application under /api/license:
//
//	GET    /catalog              catalog and summary
//	POST   /catalog              create or update a record
//	DELETE /catalog/{id}         delete a record
//	PUT    /catalog/{id}/status  enable or disable a record
//	GET    /status               current entitlement
//	POST   /activate             activate a code (rate limited)
//	POST   /deactivate           clear the activation
//	GET    /export               catalog export text (?format=base64|json)
//	POST   /import               import catalog text
//	GET    /export.xlsx          spreadsheet report
//	GET    /export.csv           CSV report
package http
