/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// DirectMessage is a private message to an identity.
// Link is rendered as a clickable call to action when present.
type DirectMessage struct {
	Title       string
	Description string
	Link        string
	Text        string
}
