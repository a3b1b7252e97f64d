// Package main hosts the audioconv CLI entrypoint and command graph.
//
// The root command scans the input tree, converts every stale matching file
// into the output tree, and reports progress on the terminal or through
// structured logs. Subcommands scaffold a configuration file, check the
// external tools, and list recent runs from the history database.
//
// Keep this package lean: conversion logic lives in the internal packages and
// is only wired together here.
package main
