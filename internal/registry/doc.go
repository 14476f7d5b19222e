// Package registry holds the route indexes and the lazy group loader.
//
// Groups start out as loader functions. The first resolution of any path in a
// group runs its loader once, inserts every route of the group under a single
// write lock, and drops the loader. Concurrent first resolutions share that
// load through singleflight. A failed load removes the group as well; it
// cannot be retried without a Reset.
//
// Two groups claiming the same path is rejected: the second group fails to
// load and the routes already present are left untouched.
package registry
