// Package workerrun boots the pgjobq worker process.
//
// The worker owns the background maintenance loops: the reaper that
// reclaims expired in-flight messages, the scheduler that promotes due
// scheduled messages, and (when retention is configured) the janitor
// that trims old completed rows. Any number of workers may run against
// one database; row locking keeps their sweeps from overlapping.
package workerrun
