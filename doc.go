// Package netloop is a reactor-pattern TCP networking library: a single
// epoll-backed event loop multiplexes readiness for many connections plus
// cross-thread work items, acceptors and connectors drive the connection
// lifecycle, and a timing wheel expires idle peers in O(1).
//
// Linux only: the design relies on epoll and eventfd.
package netloop
