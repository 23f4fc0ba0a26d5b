/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet[string]()
	assert.False(t, s.Has("a"))
	s.Add("a")
	s.Add("a")
	assert.True(t, s.Has("a"))
	assert.Len(t, s, 1)
}

func TestSetOf(t *testing.T) {
	s := SetOf("role-1", "role-2", "role-1")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("role-2"))
	assert.False(t, s.Has("nope"))
	assert.Empty(t, SetOf[string]())
}
