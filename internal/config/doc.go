// Package config loads runtime configuration for the bucketctl client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the ledger node
//	-k string   keystore file with the personal identity
//	-s string   storage backend: memory, badger, s3 or gateway
//	-b string   badger directory (storage "badger")
//	-r string   DID resolver endpoint
//	-d string   bucket key directory
//	-t int      transaction timeout (seconds)
//	-f int      history fan-out
//	-i int      online status check interval (seconds)
//	-v string   log level: debug, info, warn, error
//
// S3 and pinning gateway settings are read from the JSON file only:
//
//	{
//	  "ledger_endpoint_addr": "127.0.0.1:50051",
//	  "storage": "s3",
//	  "s3_bucket": "bucketkeeper",
//	  "s3_region": "us-east-1",
//	  "tx_timeout": "30s"
//	}
package config
