/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package aes256filter

// Identity constants describing this filter to a host framework, carried
// verbatim from the original implementation's sxc_filter_aes256
// registration struct.
const (
	Name        = "aes256"
	UUID        = "35a5404d-1513-4009-904c-6ee5b0cd8634"
	Type        = "crypt"
	Description = "AES-256 encryption filter"

	// OptionsHelp reproduces the original filter's three-line options
	// string verbatim.
	OptionsHelp = "" +
		"nogenkey (don't generate a key file when creating a volume)\n" +
		"\tparanoid (don't use key files at all - always ask for a password)\n" +
		"\tsalt:HEX (force given salt, HEX must be 32 chars long)"
)

// ABIVersion is the {major, minor} filter-framework ABI version this
// implementation targets.
var ABIVersion = [2]int{1, 6}
