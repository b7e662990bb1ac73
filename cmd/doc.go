// Package cmd implements the attachsort command line.
//
// Every setting is a flag with an environment variable fallback; a flag that
// is set explicitly always wins. Variables may also come from a .env file,
// loaded before the flags are resolved.
//
// Commands:
//
//	serve    run the HTTP API used by the browser front-end
//	login    authorize a mailbox for terminal use and store its token
//	sort     run the pipeline once for a stored account and print the report
//	version  print the version
package cmd
