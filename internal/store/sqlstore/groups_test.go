package sqlstore

import (
	"testing"

	"github.com/mascotdog/ChatServer/internal/models"
)

func TestCreateGroup(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	id, err := testStore.CreateGroup("gophers", "go talk")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if id == 0 {
		t.Error("Expected a generated group id, got 0")
	}

	_, err = testStore.CreateGroup("gophers", "another")
	if err == nil {
		t.Error("Expected error on duplicate group name, got nil")
	}
}

func TestGroupMembers(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	a, _ := testStore.CreateUser("alice", "hash1")
	b, _ := testStore.CreateUser("bob", "hash2")
	gid, _ := testStore.CreateGroup("gophers", "go talk")

	if err := testStore.AddGroupMember(gid, a, models.RoleCreator); err != nil {
		t.Fatalf("AddGroupMember failed: %v", err)
	}
	if err := testStore.AddGroupMember(gid, b, models.RoleNormal); err != nil {
		t.Fatalf("AddGroupMember failed: %v", err)
	}

	if err := testStore.AddGroupMember(gid, b, models.RoleNormal); err == nil {
		t.Error("Expected error on duplicate membership, got nil")
	}

	ids, err := testStore.ListGroupMemberIDs(gid)
	if err != nil {
		t.Fatalf("ListGroupMemberIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(ids))
	}
	if ids[0] != a || ids[1] != b {
		t.Errorf("Expected members [%d %d], got %v", a, b, ids)
	}

	ids, _ = testStore.ListGroupMemberIDs(gid + 1)
	if len(ids) != 0 {
		t.Errorf("Expected no members for unknown group, got %d", len(ids))
	}
}
