// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` section; the `server:` key is ignored here
//   - AgentConfig: server_endpoint, scrape_interval, buffer_size, resync_every,
//     log_level, server_tls, sources []
//   - Source: id, type (prometheus|json), endpoint, node_id, metrics mapping,
//     auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve secrets from environment variables
//
// Load(path) reads the YAML file, applies defaults (10s scrape, 1000 buffer,
// full resync every 10 cycles), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// each reload.
package config
