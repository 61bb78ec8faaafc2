// Package notify wakes blocked receivers and completion waiters when the
// database signals that new work or a new acknowledgement exists.
//
// # Pieces
//
//   - Hub: in-process broadcast. Waiters subscribe to a string key and are
//     woken by closing the key's channel. Keys are created on demand and
//     removed on notify, so the map stays bounded by active waiters.
//   - Listener: one dedicated connection in LISTEN mode. It translates
//     Postgres NOTIFY events on the pgjobq_arrival and pgjobq_completion
//     channels into hub notifications and reconnects with backoff when the
//     connection drops.
//
// # Contract
//
// Every signal here is advisory. A wakeup means "the store may have
// changed"; a missed signal means nothing is lost, because all waiters
// poll the store on a timeout as well. Correctness never depends on a
// notification being delivered.
package notify
