// Package config provides loading and environment overlay for the logstore
// runtime configuration. It exposes a Default() baseline, Load() for JSON or
// YAML files, and FromEnv() to overlay LOGSTORE_* variables.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/logstore.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	st, _ := store.Open(store.Options{Config: cfg})
//	defer st.Close()
package config
