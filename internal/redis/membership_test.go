package redis

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/meeting-signaling/internal/models"
)

func newTestStore(t *testing.T, ttl time.Duration) (*MembershipStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(Options(mr.Addr(), "", 0))
	t.Cleanup(func() { _ = client.Close() })
	return NewMembershipStore(client, time.Second, ttl), mr
}

func TestMembershipStore_JoinWritesFlatRecord(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()

	p := models.Participant{UserID: "u1", RoomID: "r1", Nickname: "Al", Pub: models.ParsePublicFlag("true")}
	if err := store.Join(ctx, p); err != nil {
		t.Fatalf("join: %v", err)
	}

	got := mr.HGet("meeting-room::r1", "u1")
	if want := `{"userId":"u1","roomId":"r1","nickname":"Al","pub":true}`; got != want {
		t.Fatalf("stored %s, want %s", got, want)
	}
	if mr.TTL("meeting-room::r1") != 0 {
		t.Fatalf("no expiry expected without ttl")
	}
}

func TestMembershipStore_JoinOverwrites(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	_ = store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1", Nickname: "old"})
	if err := store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1", Nickname: "new"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	members, err := store.Members(ctx, "r1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].Nickname != "new" {
		t.Fatalf("members = %+v", members)
	}
}

func TestMembershipStore_JoinRefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if ttl := mr.TTL("meeting-room::r1"); ttl != time.Hour {
		t.Fatalf("ttl = %s, want 1h", ttl)
	}
}

func TestMembershipStore_LeaveTwice(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()
	_ = store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1"})
	_ = store.Join(ctx, models.Participant{UserID: "u2", RoomID: "r1"})

	removed, err := store.Leave(ctx, "r1", "u1")
	if err != nil || !removed {
		t.Fatalf("first leave = %v %v", removed, err)
	}
	removed, err = store.Leave(ctx, "r1", "u1")
	if err != nil || removed {
		t.Fatalf("second leave = %v %v, want no-op", removed, err)
	}
	if mr.HGet("meeting-room::r1", "u1") != "" {
		t.Fatalf("u1 still stored")
	}

	ids, err := store.MemberIDs(ctx, "r1")
	if err != nil {
		t.Fatalf("member ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != "u2" {
		t.Fatalf("ids = %v, want [u2]", ids)
	}
}

func TestMembershipStore_MembersSkipsGarbage(t *testing.T) {
	store, mr := newTestStore(t, 0)
	ctx := context.Background()
	_ = store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1"})
	mr.HSet("meeting-room::r1", "bad", "{not json")

	members, err := store.Members(ctx, "r1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "u1" {
		t.Fatalf("members = %+v", members)
	}
}

func TestMembershipStore_EmptyRoom(t *testing.T) {
	store, _ := newTestStore(t, 0)
	members, err := store.Members(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("members = %+v", members)
	}
}

func TestMembershipStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t, 0)
	mr.SetError("ERR simulated outage")
	ctx := context.Background()

	if err := store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("join err = %v", err)
	}
	if _, err := store.Leave(ctx, "r1", "u1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("leave err = %v", err)
	}
	if _, err := store.MemberIDs(ctx, "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("member ids err = %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("ping err = %v", err)
	}
}

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestMembershipStore_TimeoutIsUnavailable(t *testing.T) {
	client := redis.NewClient(Options(silentServer(t), "", 0))
	t.Cleanup(func() { _ = client.Close() })
	store := NewMembershipStore(client, 50*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	if err := store.Join(ctx, models.Participant{UserID: "u1", RoomID: "r1"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("join err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.MemberIDs(ctx, "r1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("member ids err = %v, want ErrStoreUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("store calls took %s, want them cut off by the 50ms timeout", elapsed)
	}
}
