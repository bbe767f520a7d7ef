// Package client implements encrypted bucket messaging on top of a ledger.
//
// # Overview
//
// A bucket is an append-only list of message references kept on the ledger.
// Message bodies live in a content-addressed storage provider, encrypted to
// the bucket's current public key. Readers obtain the bucket secret keys
// from key-distribution messages written to the same bucket, each one
// encrypted to a set of reader identity keys.
//
// The package provides:
//  1. Administration calls (CreateNamespace, CreateBucket, role changes,
//     tags, governance removals), each confirmed by its ledger event.
//  2. Key management: BucketPublicKey, ShareBucketKey, RotateBucketKey and
//     RetrieveBucketKeys.
//  3. Messaging: SendDirectMessage, SendMediaMessage, ReceiveMessage,
//     RetrieveBucketMessages, RetrieveBucketHistory and DecryptAttachment.
//
// # Connection
//
// Connect dials the ledger and starts a watcher that pings it every
// OnlineCheckInterval. State changes are published on States until Close.
//
// # Error Handling
//
// Conditions are reported with the sentinel errors of package common and
// can be matched with errors.Is. Rejected ledger calls surface as
// *common.CallError. RetrieveBucketMessages never fails on a single message:
// unreadable entries are returned with Err set.
//
// Concurrency & Contexts
//
// A connected Client is safe for concurrent use. Every blocking operation
// takes a context.Context and honors cancellation.
package client
