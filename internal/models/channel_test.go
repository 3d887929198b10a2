package models

import "testing"

func strip(id string, level int, muted, solo bool) ChannelStrip {
	return ChannelStrip{ID: id, CurrentLevel: level, IsMuted: muted, IsSolo: solo}
}

func TestEffectiveLevelsNoFlags(t *testing.T) {
	levels := EffectiveLevels([]ChannelStrip{
		strip("a", 100, false, false),
		strip("b", 64, false, false),
	})
	if levels["a"] != 100 || levels["b"] != 64 {
		t.Fatalf("expected passthrough levels, got %v", levels)
	}
}

func TestEffectiveLevelsMute(t *testing.T) {
	levels := EffectiveLevels([]ChannelStrip{
		strip("a", 100, true, false),
		strip("b", 64, false, false),
	})
	if levels["a"] != 0 {
		t.Fatalf("muted strip should be zero, got %d", levels["a"])
	}
	if levels["b"] != 64 {
		t.Fatalf("unmuted strip should pass through, got %d", levels["b"])
	}
}

func TestEffectiveLevelsSoloSilencesOthers(t *testing.T) {
	levels := EffectiveLevels([]ChannelStrip{
		strip("a", 100, false, true),
		strip("b", 64, false, false),
		strip("c", 32, false, true),
	})
	if levels["a"] != 100 || levels["c"] != 32 {
		t.Fatalf("soloed strips should pass through, got %v", levels)
	}
	if levels["b"] != 0 {
		t.Fatalf("non-soloed strip should be silenced, got %d", levels["b"])
	}
}

func TestEffectiveLevelsMutedSoloStaysSilent(t *testing.T) {
	levels := EffectiveLevels([]ChannelStrip{
		strip("a", 100, true, true),
		strip("b", 64, false, false),
	})
	if levels["a"] != 0 {
		t.Fatalf("mute wins over solo, got %d", levels["a"])
	}
	if levels["b"] != 0 {
		t.Fatalf("solo elsewhere silences b, got %d", levels["b"])
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleOwner.AtLeast(RoleOperator) {
		t.Fatal("owner should outrank operator")
	}
	if RoleGuest.AtLeast(RoleOperator) {
		t.Fatal("guest should not reach operator")
	}
	if !RoleOperator.AtLeast(RoleOperator) {
		t.Fatal("role should satisfy itself")
	}
	if Role("bogus").AtLeast(RoleGuest) {
		t.Fatal("unknown role should not satisfy anything")
	}
}
