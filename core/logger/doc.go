// Package logger records shell events (commands, background jobs and their
// exit) as newline delimited JSON and summarizes them.
package logger
