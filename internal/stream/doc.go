// Package stream manages per-connection transfer sessions.
// A session owns one output file from allocation until the connection ends,
// decoding wire chunks into it and reporting the finished transfer.
package stream
