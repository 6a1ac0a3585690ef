// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import "testing"

// =============================================================================
// GetPersonality / SetPersonality Tests
// =============================================================================

func TestSetPersonality_AndGet(t *testing.T) {
	// Save original personality
	orig := GetPersonality()
	defer SetPersonality(orig)

	custom := Personality{
		Level:    PersonalityMinimal,
		Theme:    "custom",
		ShowTips: false,
	}
	SetPersonality(custom)

	retrieved := GetPersonality()
	if retrieved.Level != PersonalityMinimal {
		t.Errorf("expected level %v, got %v", PersonalityMinimal, retrieved.Level)
	}
	if retrieved.Theme != "custom" {
		t.Errorf("expected theme 'custom', got %q", retrieved.Theme)
	}
	if retrieved.ShowTips != false {
		t.Errorf("expected ShowTips false, got %v", retrieved.ShowTips)
	}
}

// =============================================================================
// SetPersonalityLevel Tests
// =============================================================================

func TestSetPersonalityLevel_Full(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	if GetPersonality().Level != PersonalityFull {
		t.Errorf("expected PersonalityFull, got %v", GetPersonality().Level)
	}
}

func TestSetPersonalityLevel_Machine(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("expected PersonalityMachine, got %v", GetPersonality().Level)
	}
}

func TestSetPersonalityLevel_PreservesOtherFields(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, Theme: "default", ShowTips: true})
	SetPersonalityLevel(PersonalityMachine)

	got := GetPersonality()
	if got.Theme != "default" || !got.ShowTips {
		t.Errorf("level change should not touch other fields: %+v", got)
	}
}

// =============================================================================
// ParsePersonalityLevel Tests
// =============================================================================

func TestParsePersonalityLevel_Full(t *testing.T) {
	inputs := []string{"full", "Full", "FULL", "f"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityFull {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityFull", input, result)
		}
	}
}

func TestParsePersonalityLevel_Standard(t *testing.T) {
	inputs := []string{"standard", "Standard", "STANDARD", "std", "s"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityStandard {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityStandard", input, result)
		}
	}
}

func TestParsePersonalityLevel_Minimal(t *testing.T) {
	inputs := []string{"minimal", "min", "m"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityMinimal {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityMinimal", input, result)
		}
	}
}

func TestParsePersonalityLevel_Machine(t *testing.T) {
	inputs := []string{"machine", "quiet", "q"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityMachine {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityMachine", input, result)
		}
	}
}

func TestParsePersonalityLevel_UnknownDefaultsToStandard(t *testing.T) {
	inputs := []string{"bogus", "", "fullest"}
	for _, input := range inputs {
		result := ParsePersonalityLevel(input)
		if result != PersonalityStandard {
			t.Errorf("ParsePersonalityLevel(%q) = %v, want PersonalityStandard", input, result)
		}
	}
}

// =============================================================================
// InitPersonality Tests
// =============================================================================

func TestInitPersonality_EnvOverride(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("SCRIBE_PERSONALITY", "quiet")
	InitPersonality()

	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("expected machine level from env, got %v", got)
	}
}

func TestInitPersonality_NoEnvUsesTerminalDetection(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("SCRIBE_PERSONALITY", "")
	InitPersonality()

	// Test binaries usually run with piped output, but not always.
	want := PersonalityFull
	if !isTerminal() {
		want = PersonalityMachine
	}
	if got := GetPersonality().Level; got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// =============================================================================
// Capability Check Tests
// =============================================================================

func TestIsInteractive_MachineModeNeverInteractive(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)
	if IsInteractive() {
		t.Error("machine mode should never be interactive")
	}
}

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)
	if !ShouldShowProgress() {
		t.Error("full mode should show progress")
	}

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine mode should not show progress")
	}
}

func TestShouldShowColors(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)
	if !ShouldShowColors() {
		t.Error("minimal mode should still allow colors")
	}

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowColors() {
		t.Error("machine mode should not use colors")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull {
		t.Errorf("expected full default level, got %v", p.Level)
	}
	if !p.ShowTips {
		t.Error("tips should default on")
	}
}
