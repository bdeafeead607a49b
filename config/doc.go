// Package config provides unified configuration loading for coterm.
//
// Priority: defaults -> YAML file -> environment variables. The database
// connection string additionally resolves through a documented fallback chain
// (COTERM_DATABASE_URL -> DATABASE_URL -> CLAUDE_HOOKS_DB_URL -> local sqlite
// file in the state directory) so existing hook installations keep working.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("coterm.yaml").
//	    WithEnvPrefix("COTERM").
//	    Load()
package config
