// Package httpapi serves the change history to a local viewer over JSON.
//
// Routes:
//
//	GET  /api/history?limit=&entity=&object=&author=
//	GET  /api/commits/{hash}
//	GET  /api/entities/{type}/{id}
//	GET  /api/recent?limit=
//	GET  /api/verify
//	POST /api/restore/{hash}
//	GET  /api/export?snapshots=&entity=&limit=
//
// Unknown commits answer 404 and snapshots that cannot be decrypted 422.
package httpapi
