package peer

import "errors"

var (
	// ErrSelfPeer indicates an attempt to add the local node to its own peer table.
	ErrSelfPeer = errors.New("peer: cannot add self as peer")

	// ErrEmptyPeer indicates a peer with an empty id or address.
	ErrEmptyPeer = errors.New("peer: id and address are required")

	// ErrPeerNotFound indicates the peer id is not in the table.
	ErrPeerNotFound = errors.New("peer: peer not found")

	// ErrConnectionFailed indicates the request to a peer could not complete.
	ErrConnectionFailed = errors.New("peer: connection failed")

	// ErrInvalidResponse indicates the peer returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("peer: invalid response")

	// ErrStatus indicates the peer answered with a non-2xx HTTP status.
	ErrStatus = errors.New("peer: unexpected status")

	// ErrTrackerLookup indicates the tracker address could not be resolved.
	ErrTrackerLookup = errors.New("peer: tracker lookup failed")

	// ErrNoEndpoints indicates SRV lookup returned no usable records.
	ErrNoEndpoints = errors.New("peer: no tracker endpoints")
)
