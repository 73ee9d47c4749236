// Package protocol implements the data-port wire encodings.
// The camera sends image bytes as ASCII hex pairs (or raw bytes); decoders here
// turn an arbitrarily chunked stream back into the original bytes.
package protocol
