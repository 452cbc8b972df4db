// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package tinyproto

var crcTable = makeCRCTable(crcPolynomial)

// makeCRCTable builds the MSB-first lookup table for an 8-bit polynomial.
func makeCRCTable(poly byte) [256]byte {
	var table [256]byte
	for i := range table {
		crc := byte(i)
		for n := 0; n < 8; n++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CalculateCRC computes the CRC-8/AUTOSAR checksum of data.
func CalculateCRC(data []byte) byte {
	return crcUpdate(crcInitial, data) ^ crcXorOut
}

// crcUpdate feeds data into a running (not yet inverted) CRC register.
func crcUpdate(crc byte, data []byte) byte {
	for _, b := range data {
		crc = crcTable[b^crc]
	}
	return crc
}

// crcOf is CalculateCRC for a single byte without allocating.
func crcOf(b byte) byte {
	return crcTable[b^crcInitial] ^ crcXorOut
}
