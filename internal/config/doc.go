// Package config provides configuration loading and validation for the image receiver.
// The data port and output directory are compile-time constants; the YAML file only
// carries logging, the HTTP ops API, receiver tuning and the transfer ledger.
package config
