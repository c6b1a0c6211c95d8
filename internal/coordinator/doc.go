// Package coordinator hands out download and conversion jobs from the shared
// record store so that several workers never process the same record twice.
//
// Every operation is one read-modify-write cycle under the store's file lock
// plus an in-process mutex: reload, select or validate, stamp, save. Claims
// are advisory; a converting claim stays owned only while its heartbeat is
// fresher than the staleness threshold. Successful transitions are appended
// to the history journal when one is configured.
package coordinator
