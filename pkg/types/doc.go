// Package types defines the wire shapes shared by the server's transports and
// its REST API: the metrics snapshot pushed to observers and the JSON frames
// spoken on the broker endpoint.
package types
