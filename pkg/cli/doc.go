// Package cli provides the quire command-line interface.
//
// # Commands
//
// generate: render the input directory into a site
//
//	quire generate \
//		--input docs \
//		--out site \
//		--plugin ./plugins/search \
//		--hosted-base-url https://docs.example.com/
//
// serve: build the site and serve it with health and metrics endpoints
//
//	quire serve --watch --addr 127.0.0.1:8000
//
// plugin verify: load plugins against a scratch host and print the outcome
//
//	quire plugin verify ./plugins/search ./plugins/analytics
//
// # Configuration
//
// Every command reads defaults, then the file named by --config (or
// quire.yaml in the working directory), then QUIRE_* environment variables,
// then flags. See package config for the file format.
package cli
