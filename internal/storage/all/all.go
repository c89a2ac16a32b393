// Package all registers every storage backend. Import for side effects:
//
//	import _ "tariffload/internal/storage/all"
package all

import (
	_ "tariffload/internal/storage/mssql"
	_ "tariffload/internal/storage/postgres"
	_ "tariffload/internal/storage/sqlite"
)
