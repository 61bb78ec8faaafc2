// Package client provides the `pgjobq` command-line client.
//
// The CLI talks directly to the Postgres database that backs the queues;
// there is no intermediate server. It is primarily intended for
// developers and operators.
//
// Installation
//
//	go install github.com/webclinic017/pgjobq/cmd/pgjobq@latest
//
// # Database configuration
//
// The database connection is resolved by the application that embeds the
// commands via a RuntimeFunc. The standalone binary layers, in order:
// built-in defaults, a JSON or YAML config file (--config or the default
// search path), PGJOBQ_* environment variables, and the --db flag.
//
// Usage
//
//	pgjobq migrate
//
//	pgjobq queue create --name orders
//	pgjobq queue list
//	pgjobq queue stats --name orders
//	pgjobq queue purge --name orders --older-than-ms 86400000
//
//	pgjobq send --queue orders --data '{"sku":"A-17"}'
//	pgjobq send --queue orders --data one --data two --data three
//	pgjobq send --queue orders --data later --delay-ms 5000
//	pgjobq send --queue orders --data audited --wait --wait-timeout-ms 30000
//
//	# Claim one message, print it, leave the claim open
//	pgjobq receive --queue orders --visibility-ms 60000
//
//	# Worker loop: keep receiving and ack everything until Ctrl+C
//	pgjobq receive --queue orders --follow --auto-ack
//
//	# Settle a claim printed by receive
//	pgjobq ack --queue orders --id MSG_ID --token LOCK_TOKEN
//	pgjobq release --queue orders --id MSG_ID --token LOCK_TOKEN
//	pgjobq extend --queue orders --id MSG_ID --token LOCK_TOKEN --extension-ms 120000
//
//	# One-shot maintenance sweeps (the worker daemon runs these in loops)
//	pgjobq reap
//	pgjobq promote
//
// Notes
//
//   - receive prints each message as one JSON object including the
//     lock_token needed by ack, release, and extend. A claim that is
//     never settled becomes claimable again when its visibility deadline
//     passes.
//   - release returns a message without counting an attempt; letting the
//     deadline expire keeps the attempt counted.
//   - send --wait resolves only when a consumer's ack is durably
//     committed, so it can be used as a cheap job-completion barrier.
package client
