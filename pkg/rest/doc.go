// Package rest serves a derived route table over HTTP.
//
// Every route becomes a Go 1.22 mux pattern under the base URL; ":param"
// segments become wildcards. Routes that collapse onto the same pattern
// (GET /users/:id and GET /users/:name) are told apart by their parameter
// constraints: id matches digits, name matches word characters and "-".
//
// The action input merges, in increasing precedence, the request body, the
// query string and the path parameters:
//
//	Source       | Shape
//	-------------|-------------------------------------------------------
//	JSON object  | merged as is; key order of orderBy is kept
//	JSON array   | becomes {"data": [...]}
//	form body    | decoded like the query string
//	query string | a[b][c]=v and a.b.c=v nest, a[]=v and repeats append
//	path params  | strings, eg {"id": "12"}
//
// Responses are the controller envelope; its status is the HTTP status and
// requestId carries the X-Request-Id value.
//
// Besides the table routes the server answers:
//
//	GET {base}/              route list and per-table summary
//	GET {base}/openapi.json  OpenAPI document of the route table
//	GET {base}/_schema       introspected tables, when a schema handler is set
//
// Example usage:
//
//	table, err := routes.NewDeriver().Derive(models, registry, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv, err := rest.NewServer(table, controller.Env{Store: store}, rest.WithBaseURL("/api"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(http.ListenAndServe(":8080", srv))
package rest
