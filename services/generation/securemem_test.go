// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import "testing"

func TestMlockAvailable_StableAcrossCalls(t *testing.T) {
	ok1, limit1 := MlockAvailable()
	ok2, limit2 := MlockAvailable()
	if ok1 != ok2 || limit1 != limit2 {
		t.Errorf("MlockAvailable changed between calls: (%v, %d) then (%v, %d)",
			ok1, limit1, ok2, limit2)
	}
}

func TestMlockAvailable_LimitShape(t *testing.T) {
	ok, limitKB := MlockAvailable()

	// -1 means the limit is unknown or unlimited; both count as available.
	if limitKB == -1 && !ok {
		t.Error("an unknown or unlimited mlock limit must report available")
	}
	if !ok && limitKB >= minMlockLimitKB {
		t.Errorf("limit %d KB meets the %d KB floor but reported unavailable",
			limitKB, minMlockLimitKB)
	}
}
