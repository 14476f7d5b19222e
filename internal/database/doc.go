// Package database opens the PostgreSQL pool behind the shared route table
// cache.
//
// Instances that point at the same database and cache namespace share one
// table list, so only the first instance after a release scans the catalog.
package database
