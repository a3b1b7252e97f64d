// Package preflight provides readiness checks for the external tools and
// filesystem paths a conversion run depends on.
//
// The run command calls RunAll before scanning so a missing encoder or an
// unwritable output tree fails fast instead of once per file. The CLI
// "audioconv check" command renders the same results as a table.
package preflight
