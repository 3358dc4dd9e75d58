// Package config loads quire configuration.
//
// # Precedence
//
// Defaults, then a YAML file (quire.yaml in the working directory unless
// --config names another), then QUIRE_* environment variables, then flags.
//
//	name: Handbook
//	input: docs
//	output:
//	  type: s3
//	  s3:
//	    bucket: handbook-site
//	    prefix: v2
//	plugins:
//	  - ./plugins/search-index
//	concurrency: 4
//	hostedBaseUrl: https://handbook.example.com/
//	options:
//	  searchLanguage: en
//
// # Environment
//
//	QUIRE_INPUT="docs"
//	QUIRE_OUTPUT="site"
//	QUIRE_OUTPUT_TYPE="fs"  # fs, s3
//	QUIRE_PLUGINS="./plugins/a,./plugins/b"
//	QUIRE_CONCURRENCY="4"
//	QUIRE_HOSTED_BASE_URL="https://handbook.example.com/"
//	QUIRE_S3_BUCKET="handbook-site"
//	QUIRE_LOG_LEVEL="info"  # debug, info, warn, error
//	QUIRE_METRICS_FILE="/var/lib/node_exporter/quire.prom"
//	QUIRE_OTEL_ENABLED="true"
//	QUIRE_OTEL_ENDPOINT="otel-collector:4317"
package config
