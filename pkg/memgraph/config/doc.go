/*
Package config provides type-safe configuration extraction and the run
configuration passed to every graph invocation.

# Config

Config wraps a map[string]any and provides typed accessors that return a
default when a key is missing or has the wrong type:

	cfg := config.New(map[string]any{
	    "timeout": "30s",
	    "retries": 3,
	})

	timeout := cfg.Duration("timeout", 10*time.Second) // 30s
	retries := cfg.Int("retries", 5)                   // 3
	missing := cfg.String("missing", "default")        // "default"

Duration accepts a time.ParseDuration string, a number of seconds, or a
time.Duration. Int accepts float64 values only when they have no fractional
part.

# RunConfig

RunConfig identifies the thread a run belongs to and carries any extra keys
nodes want to read:

	cfg := config.NewRunConfig("thread-1", map[string]any{
	    config.KeyUserID: "user_001",
	    "session_type":   "support",
	})

	cfg.ThreadID()                         // "thread-1"
	cfg.UserID()                           // "user_001"
	cfg.String("session_type", "")         // "support"
	other := cfg.WithThread("thread-2")    // cfg is unchanged

The engine reads only thread_id. Everything else is for nodes.

# File Loading

	cfg, err := config.FromFile("config.yaml")
	run, err := config.LoadRunConfig("run.json")

Files may reference environment variables as ${VAR} or $VAR; they are
expanded before the file is decoded.

# Thread Safety

Config and RunConfig are immutable values and safe for concurrent use.
*/
package config
