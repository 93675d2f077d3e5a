package sharding

import (
	"fmt"
	"hash/crc32"
	"testing"
)

func TestGetShardID(t *testing.T) {
	for _, addr := range []string{"NXV7ZhHiyM1aHXwpVsRZC6BwNFP2jghXAq", "NbMgPzVBxbGU2DEt4a8VgDqfgcXTnYVUrd", "x"} {
		t.Run(addr, func(t *testing.T) {
			want := int(crc32.ChecksumIEEE([]byte(addr)) % ShardCount)
			if got := GetShardID(addr); got != want {
				t.Errorf("GetShardID(%q) = %v, want %v", addr, got, want)
			}
		})
	}
}

func TestMessageSubjectRoundTrip(t *testing.T) {
	addr := "NXV7ZhHiyM1aHXwpVsRZC6BwNFP2jghXAq"
	subject := MessageSubject(addr)
	expected := fmt.Sprintf("mp.msg.%d.%s", GetShardID(addr), addr)
	if subject != expected {
		t.Fatalf("MessageSubject = %v, want %v", subject, expected)
	}
	got, ok := AddressFromSubject(subject)
	if !ok || got != addr {
		t.Fatalf("AddressFromSubject = %q, %v", got, ok)
	}
}

func TestAddressFromSubjectRejectsForeignSubjects(t *testing.T) {
	for _, s := range []string{"mp.notify.x.y", "mp.msg.1", "mp.msg.1.", "app.command.1.todo.a"} {
		if _, ok := AddressFromSubject(s); ok {
			t.Errorf("AddressFromSubject(%q) accepted", s)
		}
	}
}

func TestDistribution(t *testing.T) {
	distribution := make(map[int]int)
	for i := 0; i < 1000; i++ {
		distribution[GetShardID(fmt.Sprintf("addr-%d", i))]++
	}
	if len(distribution) < 100 {
		t.Errorf("Sharding distribution is too poor. Only %d unique shards used for 1000 addresses", len(distribution))
	}
}
