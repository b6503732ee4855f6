// Package middleware holds the HTTP middleware the REST server installs:
// request ids, access logging, CORS, panic recovery and request metrics.
// Compose them with httputil.Chain or Router.Use.
package middleware
