// Package config provides server configuration for the Random Pick Server.
//
// Settings are layered:
//   - Built-in defaults (Default)
//   - An optional JSON file (Load)
//   - Command line flags and environment variables, applied by main
//
// Configuration Format:
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 3000,
//	  "read_limit": 65536,
//	  "send_buffer": 16,
//	  "write_wait": "10s",
//	  "pong_wait": "60s",
//	  "ping_period": "54s",
//	  "accept_subprotocol": true,
//	  "shutdown_timeout": "10s"
//	}
//
// Durations use Go duration syntax. Fields missing from the file keep their
// default values.
//
// Usage:
//
//	cfg, err := config.Load("randompick.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.Port = 9090
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config
