// Package server exposes the attachment pipeline over HTTP.
//
// The API is meant to be called by a browser front-end on another origin,
// so every route is wrapped in CORS handling with credentials allowed:
//
//	GET  /check-auth         {"authenticated": bool}
//	GET  /auth?email=        {"authUrl": string}
//	GET  /oauth2callback     stores the token, redirects to the front-end
//	GET  /fetch-attachments  runs the pipeline for the session's mailbox
//	POST /upload             stores one multipart file in Drive
//
// OAuth tokens are kept per browser session in memory (SessionManager) and
// turned into authorized Google clients for each request, so no credentials
// are shared between users. Health probes are served next to the API and
// Prometheus metrics on a dedicated MetricsServer.
package server
