// Package auth resolves the principal behind a request.
//
// A credential is read from the "token" query parameter first and from an
// "Authorization: Bearer" header second. It is verified and the user is looked
// up in the directory to obtain the role. Any failure yields ErrUnauthenticated.
package auth
