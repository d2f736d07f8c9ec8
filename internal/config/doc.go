/*
Package config provides configuration management for Strata with multi-source support.

Configuration is resolved in precedence order: compiled-in defaults, then a YAML
file, then STRATA_* environment variables. Validate should be called after all
sources are applied.

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/strata/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO

	cache:
	  root: /var/cache/strata
	  default_ttl: 1h
	  max_memory: 256MB
	  namespaces:
	    titles:
	      version: v1
	      ttl: 1h

	remote:
	  enabled: true
	  region: us-east-1
	  bucket: strata-cache

	monitoring:
	  metrics_enabled: true
	  metrics_port: 9095

Environment variable mapping:

	STRATA_LOG_LEVEL="DEBUG"
	STRATA_CACHE_ROOT="/srv/strata"
	STRATA_CACHE_MAX_MEMORY="1GB"
	STRATA_REMOTE_ENABLED="true"
	STRATA_REMOTE_BUCKET="strata-prod"

Credentials for the remote tier are never read from the YAML file; they come
from the standard AWS environment and shared-credentials chain.
*/
package config
