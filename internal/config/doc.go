// Package config provides loading and environment overlay for pgjobq
// configuration. It exposes a Default() baseline, file loading for JSON and
// YAML, and a PGJOBQ_* environment overlay applied on top.
//
// Example:
//
//	cfg := config.Default()
//	if path := config.DefaultConfigPath(); path != "" {
//	    if fileCfg, err := config.Load(path); err == nil {
//	        cfg = fileCfg
//	    }
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config
