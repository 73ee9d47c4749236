// Package sequence allocates sequentially numbered output file names.
package sequence
