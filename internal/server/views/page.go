/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package views

// StylesheetPath is where the page expects its stylesheet to be served.
const StylesheetPath = "/static/verify.css"

// PageData selects one of three renderings: the challenge form, an error, or
// the success notice.
type PageData struct {
	SiteKey string
	Error   string
	Success bool
}

func (d PageData) showForm() bool {
	return !d.Success && d.Error == ""
}
