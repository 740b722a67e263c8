// Package mport defines the core domain types shared by the package
// lifecycle engine: installed package records, plist assets, dependency
// and conflict edges, and the typed error domain every other package in
// this module returns.
//
// Sub-packages implement the stateful pieces: version compares and
// parses range predicates, catalog owns the durable relational store,
// bundle streams package archives, install and remove are the
// transactional engines, upgrade walks the dependency DAG against a
// remote index, autoremove sweeps orphans, and audit renders security
// advisories.
package mport
