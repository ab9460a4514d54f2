// Package all wires every built-in cache backend into cache.Open.
//
// Importing it for side effects makes these kinds available besides the
// built-in "memory":
//
//   - "sqlite", "mysql", "sqlserver" (internal/cache/sqlstore)
//   - "postgres"                     (internal/cache/pgstore)
//
// A binary that needs fewer drivers can import the backend packages directly.
package all

import (
	_ "github.com/advanced-computing/sleepy-narwhal/internal/cache/pgstore"
	_ "github.com/advanced-computing/sleepy-narwhal/internal/cache/sqlstore"
)
