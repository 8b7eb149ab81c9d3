package jit

import (
	"testing"

	"github.com/tangzhangming/minijvm/internal/program"
)

func cachePC(offset int) program.PC {
	return program.PC{Method: 0, Offset: offset}
}

// TestInstallFirstWins 首装生效
func TestInstallFirstWins(t *testing.T) {
	c := NewCache(0)
	pc := cachePC(4)

	first := &CompiledTrace{EntryPC: pc, Code: []byte{0xC3}}
	second := &CompiledTrace{EntryPC: pc, Code: []byte{0x90, 0xC3}}

	if got := c.Install(pc, first); got != first {
		t.Fatal("first install rejected")
	}
	if got := c.Install(pc, second); got != first {
		t.Error("second install should be discarded in favor of the first")
	}
	if c.Lookup(pc) != first {
		t.Error("lookup does not return the first installation")
	}
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}
}

// TestBlacklistExclusive 黑名单与缓存互斥
func TestBlacklistExclusive(t *testing.T) {
	c := NewCache(0)
	pc := cachePC(8)

	c.Install(pc, &CompiledTrace{EntryPC: pc, Code: []byte{0xC3}})
	c.Blacklist(pc)
	if c.Blacklisted(pc) {
		t.Error("installed pc must not be blacklistable")
	}

	other := cachePC(12)
	c.Blacklist(other)
	if !c.Blacklisted(other) {
		t.Error("blacklist did not record the pc")
	}
	if c.Lookup(other) != nil {
		t.Error("blacklisted pc should not resolve to a trace")
	}
}

// TestCacheCapacity 容量耗尽按编译失败处理
func TestCacheCapacity(t *testing.T) {
	c := NewCache(4)
	pc := cachePC(16)

	big := &CompiledTrace{EntryPC: pc, Code: make([]byte, 8)}
	if got := c.Install(pc, big); got != nil {
		t.Error("install beyond capacity should fail")
	}
	if !c.Blacklisted(pc) {
		t.Error("capacity failure should blacklist the entry")
	}
}

// TestTeardown 拆除后缓存为空
func TestTeardown(t *testing.T) {
	c := NewCache(0)
	for _, off := range []int{4, 8, 12} {
		pc := cachePC(off)
		c.Install(pc, &CompiledTrace{EntryPC: pc, Code: []byte{0xC3}})
	}
	c.Teardown()
	if c.Size() != 0 {
		t.Errorf("size after teardown = %d, want 0", c.Size())
	}
	if c.Lookup(cachePC(4)) != nil {
		t.Error("lookup after teardown should miss")
	}
}

// TestFaultExitRoundTrip 故障哨兵编码往返
func TestFaultExitRoundTrip(t *testing.T) {
	for _, pc := range []int{0, 11, 512} {
		code := faultExitCode(pc)
		if code >= 0 {
			t.Errorf("faultExitCode(%d) = %d, want negative", pc, code)
		}
		got, fault := DecodeFaultExit(int(code))
		if !fault || got != pc {
			t.Errorf("DecodeFaultExit(%d) = (%d, %v), want (%d, true)", code, got, fault, pc)
		}
	}
	if _, fault := DecodeFaultExit(20); fault {
		t.Error("non-negative exit decoded as fault")
	}
}
