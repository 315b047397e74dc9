package presence

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRegisterReplacesExisting(t *testing.T) {
	r := NewRegistry()

	c1 := &Conn{}
	c2 := &Conn{}

	r.Register("alice", c1)
	r.Register("alice", c2)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	require.Same(t, c2, got)
	require.Equal(t, 1, r.Count())
}

func TestUnregisterIdentityGuard(t *testing.T) {
	r := NewRegistry()

	c1 := &Conn{}
	c2 := &Conn{}

	// alice connects, then reconnects before the old connection's close
	// event arrives.
	r.Register("alice", c1)
	r.Register("alice", c2)

	// The stale close for c1 must not evict c2.
	removed := r.Unregister("alice", c1)
	require.False(t, removed)

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	require.Same(t, c2, got)

	// The close for the live connection does remove the entry.
	removed = r.Unregister("alice", c2)
	require.True(t, removed)

	_, ok = r.Lookup("alice")
	require.False(t, ok)
}

func TestUnregisterUnknownUser(t *testing.T) {
	r := NewRegistry()

	require.False(t, r.Unregister("ghost", &Conn{}))
	require.Empty(t, r.Snapshot())
}

func TestSnapshotConsistency(t *testing.T) {
	r := NewRegistry()

	r.Register("u1", &Conn{})
	r.Register("u2", &Conn{})
	r.Register("u3", &Conn{})

	snap := r.Snapshot()
	sort.Strings(snap)
	require.Equal(t, []string{"u1", "u2", "u3"}, snap)
}

// TestRegistryInvariants drives the registry through arbitrary sequences of
// connect/reconnect/disconnect events against a model map and checks that
// the single-entry and no-duplicate invariants hold after every step.
func TestRegistryInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()

		users := []string{"u1", "u2", "u3", "u4"}
		model := make(map[string]*Conn) // expected registry contents
		stale := make(map[string]*Conn) // superseded connections per user

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0: // connect (or reconnect)
				conn := &Conn{}
				if prev, ok := model[user]; ok {
					stale[user] = prev
				}
				r.Register(user, conn)
				model[user] = conn

			case 1: // disconnect of the live connection
				if conn, ok := model[user]; ok {
					removed := r.Unregister(user, conn)
					if !removed {
						t.Fatalf("live unregister for %s was a no-op", user)
					}
					delete(model, user)
				}

			case 2: // stale disconnect for a superseded connection
				if old, ok := stale[user]; ok {
					if r.Unregister(user, old) {
						t.Fatalf("stale unregister for %s evicted a live entry", user)
					}
					delete(stale, user)
				}
			}

			// Snapshot must be duplicate-free and match the model exactly.
			snap := r.Snapshot()
			seen := make(map[string]bool, len(snap))
			for _, id := range snap {
				if seen[id] {
					t.Fatalf("snapshot contains duplicate user %q", id)
				}
				seen[id] = true
			}
			if len(snap) != len(model) {
				t.Fatalf("snapshot has %d users, model has %d", len(snap), len(model))
			}
			for id, conn := range model {
				got, ok := r.Lookup(id)
				if !ok {
					t.Fatalf("model user %q missing from registry", id)
				}
				if got != conn {
					t.Fatalf("registry holds wrong connection for %q", id)
				}
			}
		}
	})
}
