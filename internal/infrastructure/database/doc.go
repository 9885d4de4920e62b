// Package database provides SQLite connectivity for lambdawp.
//
// The database stores configuration entries (with their schema version) and
// the entity registry that host platforms populate. Schema changes are
// forward-only migrations embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
