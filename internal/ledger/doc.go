// Package ledger records finished transfers outside the output directory.
// Records can go to a Postgres table, a Pub/Sub topic, or both.
package ledger
