package whitelist

import "testing"

func TestAddAndIsWhitelisted(t *testing.T) {
	l := New()
	if l.IsWhitelisted("0xabc") {
		t.Fatal("expected unknown address to be unwhitelisted")
	}
	l.Add("0xabc")
	if !l.IsWhitelisted("0xabc") {
		t.Fatal("expected address to be whitelisted after Add")
	}
}

func TestBlacklistRevokesWithoutForgetting(t *testing.T) {
	l := New()
	l.Add("0xabc")
	l.Blacklist("0xabc")
	if l.IsWhitelisted("0xabc") {
		t.Fatal("expected blacklisted address to not be whitelisted")
	}

	all := l.GetAll()
	if len(all) != 1 || all[0].Address != "0xabc" || !all[0].IsBlacklisted {
		t.Fatalf("expected entry to survive blacklisting, got %+v", all)
	}

	l.Unblacklist("0xabc")
	if !l.IsWhitelisted("0xabc") {
		t.Fatal("expected unblacklisted address to be whitelisted again")
	}
}

func TestRemoveForgetsEntirely(t *testing.T) {
	l := New()
	l.Add("0xabc")
	l.Remove("0xabc")
	if len(l.GetAll()) != 0 {
		t.Fatal("expected no entries after Remove")
	}
}

func TestBlacklistUnknownAddressIsNoop(t *testing.T) {
	l := New()
	l.Blacklist("0xabc")
	if len(l.GetAll()) != 0 {
		t.Fatal("expected blacklisting an unknown address to add nothing")
	}
}
