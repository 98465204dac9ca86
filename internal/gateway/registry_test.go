package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

func TestRegistryJoinAndMembers(t *testing.T) {
	registry := NewRegistry()

	registry.Register(Connection{ID: "c1", UserID: "u1", Role: models.RoleStudent})
	registry.Register(Connection{ID: "c2", UserID: "u2", Role: models.RoleInstructor})

	require.NoError(t, registry.Join(SubmissionRoom("s1"), "c1"))
	require.NoError(t, registry.Join(SubmissionRoom("s1"), "c2"))

	members := registry.Members(SubmissionRoom("s1"))
	require.Len(t, members, 2)
	require.True(t, registry.InRoom(SubmissionRoom("s1"), "c1"))
	require.True(t, registry.InRoom(SubmissionRoom("s1"), "c2"))
}

func TestRegistryJoinUnknownConnection(t *testing.T) {
	registry := NewRegistry()

	err := registry.Join(SubmissionRoom("s1"), "ghost")
	require.Error(t, err)
	require.Empty(t, registry.Members(SubmissionRoom("s1")))
}

func TestRegistryUnregisterCleansRooms(t *testing.T) {
	registry := NewRegistry()

	registry.Register(Connection{ID: "c1", UserID: "u1", Role: models.RoleStudent})
	registry.Register(Connection{ID: "c2", UserID: "u2", Role: models.RoleStudent})

	require.NoError(t, registry.Join(SubmissionRoom("s1"), "c1"))
	require.NoError(t, registry.Join(SubmissionRoom("s1"), "c2"))
	require.NoError(t, registry.Join(UserRoom("u1"), "c1"))
	require.NoError(t, registry.Join(SubmissionRoom("s2"), "c1"))

	emptied := registry.Unregister("c1")
	require.ElementsMatch(t, []string{UserRoom("u1"), SubmissionRoom("s2")}, emptied)

	// c1 is absent from every room.
	require.False(t, registry.InRoom(SubmissionRoom("s1"), "c1"))
	require.False(t, registry.InRoom(SubmissionRoom("s2"), "c1"))
	require.False(t, registry.InRoom(UserRoom("u1"), "c1"))

	// Rooms with remaining members survive; emptied rooms are deleted.
	require.Len(t, registry.Members(SubmissionRoom("s1")), 1)
	require.Equal(t, 1, registry.RoomCount())

	_, ok := registry.Get("c1")
	require.False(t, ok)
	require.Equal(t, 1, registry.ConnectionCount())
}

func TestRegistryLeaveDeletesEmptyRoom(t *testing.T) {
	registry := NewRegistry()

	registry.Register(Connection{ID: "c1", UserID: "u1", Role: models.RoleStudent})
	require.NoError(t, registry.Join(SubmissionRoom("s1"), "c1"))
	require.Equal(t, 1, registry.RoomCount())

	registry.Leave(SubmissionRoom("s1"), "c1")
	require.Equal(t, 0, registry.RoomCount())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			id := fmt.Sprintf("c%d", n)
			registry.Register(Connection{ID: id, UserID: fmt.Sprintf("u%d", n), Role: models.RoleStudent})
			_ = registry.Join(SubmissionRoom("shared"), id)
			registry.Members(SubmissionRoom("shared"))
			if n%2 == 0 {
				registry.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 25, registry.ConnectionCount())
	require.Len(t, registry.Members(SubmissionRoom("shared")), 25)
}
