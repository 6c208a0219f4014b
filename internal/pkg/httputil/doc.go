// Package httputil is the single place handlers encode responses: a JSON
// envelope for errors (stable machine code plus a human message) and one
// writer for success bodies. Handlers stay out of the encoding business so
// the station frontends can count on a single wire shape.
package httputil
