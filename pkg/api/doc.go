// Package api exposes the metrics pipeline over HTTP.
//
// Endpoints (mounted under /v1 by the server):
//
//	GET  /metrics?entityId=&timeRange=&resolution=   metrics window
//	POST /entities/{entityId}/regenerate             rebuild an entity's datasets
//	GET  /entities                                   entities with datasets
//	GET  /stats                                      repository statistics
//	GET  /ws                                         regeneration notifications
//
// Errors use the httpx body {error, message}. Invalid requests return 400,
// entities without data 404 and overlapping regenerations 409.
package api
