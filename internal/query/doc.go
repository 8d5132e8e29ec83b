// Package query provides the history filter and its compilation to SQL.
//
// A Filter is what callers ask for ("commits touching debt d1 by Alice since
// Monday"). It is lowered to a small predicate tree, and the predicate tree is
// compiled to parameterized SQLite:
//
//	[Filter] -> [Predicate] -> [SQL + params]
//
// SEALED INTERFACES:
//
// Predicate is sealed with a marker method, so the compiler can switch over
// every node type exhaustively.
//
// CRITICAL PATTERNS:
//
// Values are never interpolated into SQL. Every literal becomes a ? parameter.
// Column names are checked against a fixed allow-list before they reach SQL.
//
// Every compiled query orders by seq DESC. Seq is the store's insertion
// order, which is the authoritative commit order (timestamps only break ties
// for display).
package query
