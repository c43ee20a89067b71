// Package session owns the signed-in identity: the bearer token and the user
// it belongs to. It persists the token through the REST client and drives
// the realtime connection on sign-in and sign-out.
package session
