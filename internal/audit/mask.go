/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/netip"
)

// MaskAddress keeps the network part of addr: the first two octets of an IPv4
// address, the first 32 bits of an IPv6 address.
func MaskAddress(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "[unparseable]"
	}
	ip = ip.Unmap()
	if ip.Is4() {
		b := ip.As4()
		return fmt.Sprintf("%d.%d.x.x", b[0], b[1])
	}
	b := ip.As16()
	return fmt.Sprintf("%x:%x:x:x:x:x:x:x", uint16(b[0])<<8|uint16(b[1]), uint16(b[2])<<8|uint16(b[3]))
}

// Fingerprint is a salted digest of addr, stable across events so repeat
// addresses can be correlated without revealing them.
func Fingerprint(addr string, salt []byte) string {
	h := sha256.New()
	if len(salt) > 0 {
		_, _ = h.Write(salt)
	}
	_, _ = h.Write([]byte(addr))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
