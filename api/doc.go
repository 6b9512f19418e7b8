// Package api assembles the Gate's HTTP surface. A handful of fixed
// administrative routes (health, route listing, job lookup/deletion, queue
// depth) are registered through Forge for typed request/response handling
// and OpenAPI metadata; every other path falls through to a plain
// net/http handler that hands the request to package dispatcher.
package api
