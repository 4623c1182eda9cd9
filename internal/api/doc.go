// Package api exposes the VoiceDot HTTP surface: voice processing and
// confirmation, the transaction ledger, transfer building and execution,
// wallet balances, prices and health probes. Every error is rendered as a
// stable code plus a human readable message.
package api
