// Package forecast provides the time-indexed load, PV and tariff data the
// dispatch problem is built from. Lookups are exact: a slot whose timestamp
// is missing from any series fails the whole horizon.
package forecast
