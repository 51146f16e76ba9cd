package postgres

var MigrationConfig = migrationConfig
